// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webcache

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ExpireType selects the file date used to expire disk entries.
type ExpireType int

const (
	ExpireByModification ExpireType = iota
	ExpireByAccess
)

func (t ExpireType) String() string {
	if t == ExpireByAccess {
		return "access"
	}
	return "modification"
}

// UnmarshalText parses "access" or "modification".
func (t *ExpireType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "access", "accessdate":
		*t = ExpireByAccess
	case "modification", "modificationdate", "":
		*t = ExpireByModification
	default:
		return fmt.Errorf("webcache: unknown expire type %q", b)
	}
	return nil
}

// Config holds cache limits.  Zero limits mean unlimited.
type Config struct {
	// ShouldCacheImagesInMemory keeps decoded images in the memory tier.
	ShouldCacheImagesInMemory bool `env:"MEMORY"`

	// MaxMemoryCost is the total cost of the memory tier, in bytes.
	MaxMemoryCost int64 `env:"MAX_MEMORY_COST"`

	// MaxMemoryCount is the number of objects in the memory tier.
	MaxMemoryCount int `env:"MAX_MEMORY_COUNT"`

	// MaxDiskAge is how long disk entries are kept.
	MaxDiskAge time.Duration `env:"MAX_DISK_AGE"`

	// MaxDiskSize is the total size of the disk tier, in bytes.
	MaxDiskSize int64 `env:"MAX_DISK_SIZE"`

	ExpireType ExpireType `env:"EXPIRE_TYPE"`
}

// DefaultMaxDiskAge is the disk age limit of DefaultConfig.
const DefaultMaxDiskAge = 7 * 24 * time.Hour

// DefaultConfig returns a config caching images in memory and keeping disk
// entries for a week.
func DefaultConfig() Config {
	return Config{
		ShouldCacheImagesInMemory: true,
		MaxDiskAge:                DefaultMaxDiskAge,
	}
}

// LoadConfig returns DefaultConfig overridden by environment variables
// named by prefix and the field's variable, such as
// IMAGEBRIDGE_CACHE_MAX_DISK_SIZE for prefix "IMAGEBRIDGE_CACHE_".
func LoadConfig(prefix string) (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("webcache: loading config: %w", err)
	}
	return cfg, nil
}
