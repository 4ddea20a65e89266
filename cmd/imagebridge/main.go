// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// imagebridge starts an HTTP server that loads, transforms and caches
// remote images.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PaulARoy/azurestoragecache"
	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/mux"
	"github.com/gregjones/httpcache"
	rediscache "github.com/gregjones/httpcache/redis"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"willnorris.com/go/imagebridge"
	"willnorris.com/go/imagebridge/cachebridge"
	"willnorris.com/go/imagebridge/codecbridge"
	"willnorris.com/go/imagebridge/internal/drivecache"
	"willnorris.com/go/imagebridge/internal/gcscache"
	"willnorris.com/go/imagebridge/internal/s3cache"
	"willnorris.com/go/imagebridge/internal/ttldiskcache"
	"willnorris.com/go/imagebridge/third_party/envy"
	"willnorris.com/go/imagebridge/webcache"
)

const defaultMemorySize = 100

var addr = flag.String("addr", "localhost:8080", "TCP address to listen on")
var allowHosts = flag.String("allowHosts", "", "comma separated list of allowed remote hosts")
var baseURL = flag.String("baseURL", "", "default base URL for relative remote URLs")
var cache cacheLocations
var cacheResponses = flag.Bool("cacheResponses", true, "also cache raw remote responses in the disk tier")
var expireInterval = flag.Duration("expireInterval", time.Hour, "how often expired disk entries are removed, 0 to never")
var timeout = flag.Duration("timeout", 0, "time limit for requests served by this server")
var userAgent = flag.String("userAgent", "imagebridge", "user-agent used when fetching remote images")
var verbose = flag.Bool("verbose", false, "print verbose logging messages")

func init() {
	flag.Var(&cache, "cache", "space separated locations to cache images, chained in order")
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	if err := envy.Parse("IMAGEBRIDGE"); err != nil {
		glog.Exit(err)
	}
	if *verbose {
		flag.Set("v", "1")
	}
	defer glog.Flush()

	codecbridge.Register()

	cfg, err := webcache.LoadConfig("IMAGEBRIDGE_CACHE_")
	if err != nil {
		glog.Exit(err)
	}
	disk, err := cache.DiskCache(cfg)
	if err != nil {
		glog.Exitf("error configuring cache: %v", err)
	}

	var imageCache webcache.ImageCache
	if cfg.ShouldCacheImagesInMemory || disk != nil {
		c := cachebridge.NewCache(cachebridge.NewMemoryCache(cfg), disk, cfg)
		imageCache = c
		if disk != nil && *expireInterval > 0 {
			go expire(c, *expireInterval)
		}
	}
	logCache(cfg, disk)

	l := imagebridge.NewLoader(nil, imageCache)
	l.UserAgent = *userAgent
	if disk != nil && *cacheResponses {
		l.CacheResponses(disk)
	}

	s := imagebridge.NewServer(l)
	if *allowHosts != "" {
		s.AllowHosts = strings.Split(*allowHosts, ",")
	}
	if *baseURL != "" {
		if s.DefaultBaseURL, err = url.Parse(*baseURL); err != nil {
			glog.Exitf("error parsing baseURL: %v", err)
		}
	}
	s.Timeout = *timeout

	r := mux.NewRouter().SkipClean(true).UseEncodedPath()
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").Handler(s)

	server := &http.Server{
		Addr:    *addr,
		Handler: r,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	glog.Infof("imagebridge listening on %s", server.Addr)
	glog.Fatal(server.ListenAndServe())
}

// expire periodically removes expired entries from c.
func expire(c *cachebridge.Cache, every time.Duration) {
	for range time.Tick(every) {
		err := c.RemoveExpired()
		switch {
		case errors.Is(err, errors.ErrUnsupported):
			glog.V(1).Infof("cache does not expire entries: %v", err)
			return
		case err != nil:
			glog.Errorf("error removing expired cache entries: %v", err)
		}
	}
}

func logCache(cfg webcache.Config, disk webcache.DiskCache) {
	if cfg.ShouldCacheImagesInMemory {
		limit := "unlimited"
		if cfg.MaxMemoryCost > 0 {
			limit = humanize.Bytes(uint64(cfg.MaxMemoryCost))
		}
		glog.Infof("caching decoded images in memory, limit %s", limit)
	}
	if disk == nil {
		return
	}
	glog.Infof("disk cache holds %s in %d entries, entries expire after %v",
		humanize.Bytes(uint64(disk.TotalSize())), disk.TotalCount(), cfg.MaxDiskAge)
}

// cacheLocations allows specifying multiple caches via flags, which will
// create tiered caches using the twotier package.
type cacheLocations []string

func (cl *cacheLocations) String() string {
	return strings.Join(*cl, " ")
}

func (cl *cacheLocations) Set(value string) error {
	*cl = append(*cl, strings.Fields(value)...)
	return nil
}

// DiskCache returns the disk tier for the locations, or nil if there are
// none.  A single file location is a diskv-backed cachebridge.DiskCache;
// anything else is a store chain wrapped with cachebridge.WrapStore.
func (cl cacheLocations) DiskCache(cfg webcache.Config) (webcache.DiskCache, error) {
	switch len(cl) {
	case 0:
		return nil, nil
	case 1:
		if path, ok := filePath(cl[0]); ok {
			return cachebridge.NewDiskCache(path, cfg), nil
		}
	}

	var store httpcache.Cache
	for _, v := range cl {
		c, err := parseCache(v, cfg)
		if err != nil {
			return nil, err
		}
		if store == nil {
			store = c
		} else {
			store = twotier.New(store, c)
		}
	}
	return cachebridge.WrapStore(store, cfg), nil
}

// filePath returns the directory of a file cache location.
func filePath(c string) (string, bool) {
	u, err := url.Parse(c)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return u.Path, true
	case "":
		return c, true
	}
	return "", false
}

// parseCache parses c and returns the specified store.
func parseCache(c string, cfg webcache.Config) (httpcache.Cache, error) {
	if c == "memory" {
		c = fmt.Sprintf("memory:%d", defaultMemorySize)
	}

	u, err := url.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("error parsing cache flag: %w", err)
	}

	switch u.Scheme {
	case "azure":
		return azurestoragecache.New("", "", u.Host)
	case "drive":
		return drivecache.New(u.Host)
	case "gcs":
		return gcscache.New(u.Host, strings.TrimPrefix(u.Path, "/"))
	case "memory":
		return lruCache(u.Opaque)
	case "redis":
		conn, err := redis.DialURL(u.String(), redis.DialPassword(os.Getenv("REDIS_PASSWORD")))
		if err != nil {
			return nil, err
		}
		return rediscache.NewWithClient(conn), nil
	case "s3":
		return s3cache.New(u.String())
	case "ttl":
		return ttlCache(u.Opaque)
	}

	if path, ok := filePath(c); ok {
		return cachebridge.HTTPCache(cachebridge.NewDiskCache(path, cfg)), nil
	}
	return nil, fmt.Errorf("unknown cache location %q", c)
}

// lruCache creates an LRU Cache with the specified options of the form
// "maxSize:maxAge".  maxSize is specified in megabytes, maxAge is a duration.
func lruCache(options string) (*lrucache.LruCache, error) {
	parts := strings.SplitN(options, ":", 2)
	size, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}

	var age time.Duration
	if len(parts) > 1 {
		age, err = time.ParseDuration(parts[1])
		if err != nil {
			return nil, err
		}
	}

	return lrucache.New(size*1e6, int64(age.Seconds())), nil
}

// ttlCache creates a disk cache with options of the form "maxAge:path".
func ttlCache(options string) (*ttldiskcache.Cache, error) {
	age, path, ok := strings.Cut(options, ":")
	if !ok || path == "" {
		return nil, fmt.Errorf("ttl cache location must be ttl:AGE:PATH, got %q", options)
	}
	ttl, err := time.ParseDuration(age)
	if err != nil {
		return nil, err
	}
	return ttldiskcache.New(path, ttl), nil
}
