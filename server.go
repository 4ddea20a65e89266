// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package imagebridge

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"willnorris.com/go/imagebridge/webcache"
	"willnorris.com/go/imagebridge/webimage"
)

// Server serves image requests.
//
// Note that a Server should not be run behind a http.ServeMux, since the
// ServeMux aggressively cleans URLs and removes the double slash in the
// embedded request URL.
type Server struct {
	Loader *Loader

	// AllowHosts specifies a list of remote hosts that images can be
	// loaded from.  An empty list means all hosts are allowed.
	AllowHosts []string

	// DefaultBaseURL is the URL that relative remote URLs are resolved in
	// reference to.  If nil, all remote URLs specified in requests must be
	// absolute.
	DefaultBaseURL *url.URL

	// Timeout specifies a time limit for requests served by this server.
	// If zero, no timeout is enforced.
	Timeout time.Duration
}

// NewServer constructs a new server loading images with l.
func NewServer(l *Loader) *Server {
	return &Server{Loader: l}
}

// ServeHTTP handles incoming requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/favicon.ico" {
		return // ignore favicon requests
	}

	var h http.Handler = http.HandlerFunc(s.serveImage)
	if s.Timeout > 0 {
		h = http.TimeoutHandler(h, s.Timeout, "Gateway timeout waiting for remote resource.")
	}

	timer := prometheus.NewTimer(metricRequestDuration)
	defer timer.ObserveDuration()
	h.ServeHTTP(w, r)
}

// serveImage handles incoming requests for images.
func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	req, err := NewRequest(r, s.DefaultBaseURL)
	if err != nil {
		msg := fmt.Sprintf("invalid request URL: %v", err)
		glog.Error(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	if !s.allowed(req.URL) {
		msg := fmt.Sprintf("remote URL is not for an allowed host: %v", req.URL.Host)
		glog.Error(msg)
		http.Error(w, msg, http.StatusForbidden)
		return
	}

	res, err := s.Loader.Load(r.Context(), req.URL.String(), LoadOptions{Options: req.Options})
	if err != nil {
		code := http.StatusInternalServerError
		var se *StatusError
		switch {
		case errors.As(err, &se):
			code = se.StatusCode
		case errors.Is(err, webimage.ErrUnsupportedFormat):
			code = http.StatusUnsupportedMediaType
		}
		msg := fmt.Sprintf("error loading remote image: %v", err)
		glog.Error(msg)
		http.Error(w, msg, code)
		return
	}

	data, format := res.Data, res.Format
	if data == nil {
		// cached without its encoded form
		format = req.Options.Format
		if format == webimage.FormatUndefined {
			format = webimage.FormatPNG
		}
		if data, err = s.Loader.encode(res.Image, format, req.Options); err != nil {
			msg := fmt.Sprintf("error encoding image: %v", err)
			glog.Error(msg)
			http.Error(w, msg, http.StatusInternalServerError)
			return
		}
	}

	glog.Infof("request: %v (served from cache: %v)", req, res.CacheType != webcache.None)

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
	w.Header().Set("Etag", etag)
	w.Header().Set("X-Cache", cacheStatus(res.CacheType))

	if should304(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if mime := format.MIMEType(); mime != "" {
		w.Header().Set("Content-Type", mime)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// cacheStatus is the X-Cache header value for an image served from t.
func cacheStatus(t webcache.CacheType) string {
	if t == webcache.None {
		return "miss"
	}
	return "hit " + t.String()
}

// allowed reports whether the specified URL is for an allowed host.
func (s *Server) allowed(u *url.URL) bool {
	if len(s.AllowHosts) == 0 {
		return true
	}
	return validHost(s.AllowHosts, u)
}

// validHost reports whether the host in u matches one of hosts.
func validHost(hosts []string, u *url.URL) bool {
	for _, host := range hosts {
		if u.Host == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(host, "*."); ok {
			if u.Host == suffix || strings.HasSuffix(u.Host, "."+suffix) {
				return true
			}
		}
	}

	return false
}

// should304 reports whether the request req, for an image with the entity
// tag etag, should be answered with a 304 Not Modified.
func should304(req *http.Request, etag string) bool {
	inm := req.Header.Get("If-None-Match")
	if inm == "" {
		return false
	}
	for _, tag := range strings.Split(inm, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == "*" || tag == etag {
			return true
		}
	}
	return false
}
