// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webimage

import (
	"fmt"
	"image"
	"reflect"
	"slices"
	"sync"
)

// CodersManager is a registry of coders.  It is itself a Coder that
// delegates to the most recently added coder able to handle a request.
type CodersManager struct {
	mu     sync.RWMutex
	coders []Coder
}

var (
	sharedOnce    sync.Once
	sharedManager *CodersManager
)

// SharedCodersManager returns the process-wide coders manager.
func SharedCodersManager() *CodersManager {
	sharedOnce.Do(func() {
		sharedManager = NewCodersManager()
	})
	return sharedManager
}

// NewCodersManager returns a manager holding coders, lowest priority first.
func NewCodersManager(coders ...Coder) *CodersManager {
	return &CodersManager{coders: slices.Clone(coders)}
}

// Coders returns the registered coders, lowest priority first.
func (m *CodersManager) Coders() []Coder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.coders)
}

// SetCoders replaces the registered coders.
func (m *CodersManager) SetCoders(coders []Coder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coders = slices.Clone(coders)
}

// AddCoder registers c with the highest priority.  A coder already
// registered is moved to the highest priority.
func (m *CodersManager) AddCoder(c Coder) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coders = slices.DeleteFunc(m.coders, func(x Coder) bool { return sameCoder(x, c) })
	m.coders = append(m.coders, c)
}

// RemoveCoder unregisters c.  Coders that cannot be compared, such as
// struct values holding slices, are only removed by SetCoders.
func (m *CodersManager) RemoveCoder(c Coder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coders = slices.DeleteFunc(m.coders, func(x Coder) bool { return sameCoder(x, c) })
}

// sameCoder reports whether a and b are the same coder.  Coders whose
// dynamic values cannot be compared, such as structs holding slices, are
// never the same as another coder.
func sameCoder(a, b Coder) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	return va.Type() == vb.Type() && va.Comparable() && vb.Comparable() && a == b
}

// find returns the highest priority coder for which match returns true.
func (m *CodersManager) find(match func(Coder) bool) Coder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.coders) - 1; i >= 0; i-- {
		if match(m.coders[i]) {
			return m.coders[i]
		}
	}
	return nil
}

func (m *CodersManager) CanDecode(data []byte) bool {
	return m.find(func(c Coder) bool { return c.CanDecode(data) }) != nil
}

func (m *CodersManager) Decode(data []byte, opts *CoderOptions) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("webimage: empty image data")
	}
	c := m.find(func(c Coder) bool { return c.CanDecode(data) })
	if c == nil {
		return nil, ErrUnsupportedFormat
	}
	return c.Decode(data, opts)
}

func (m *CodersManager) CanEncode(format Format) bool {
	return m.find(func(c Coder) bool { return c.CanEncode(format) }) != nil
}

func (m *CodersManager) Encode(img image.Image, format Format, opts *CoderOptions) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("webimage: nil image")
	}
	c := m.find(func(c Coder) bool { return c.CanEncode(format) })
	if c == nil {
		return nil, ErrUnsupportedFormat
	}
	return c.Encode(img, format, opts)
}

// ProgressiveCoder returns the highest priority coder able to decode data
// incrementally.
func (m *CodersManager) ProgressiveCoder(data []byte) (ProgressiveCoder, bool) {
	c := m.find(func(c Coder) bool {
		pc, ok := c.(ProgressiveCoder)
		return ok && pc.CanIncrementalDecode(data)
	})
	if c == nil {
		return nil, false
	}
	return c.(ProgressiveCoder), true
}

// AnimatedCoder returns the highest priority coder able to decode the
// frames of data on demand.
func (m *CodersManager) AnimatedCoder(data []byte) (AnimatedCoder, bool) {
	c := m.find(func(c Coder) bool {
		ac, ok := c.(AnimatedCoder)
		return ok && ac.CanDecode(data)
	})
	if c == nil {
		return nil, false
	}
	return c.(AnimatedCoder), true
}
