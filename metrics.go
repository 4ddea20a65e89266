// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package imagebridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imagebridge",
		Name:      "cache_hits_total",
		Help:      "Number of images served from cache, by cache tier.",
	}, []string{"tier"})
	metricCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagebridge",
		Name:      "cache_misses_total",
		Help:      "Number of image loads not served from cache.",
	})
	metricResponseCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagebridge",
		Name:      "response_cache_hits_total",
		Help:      "Number of remote responses served from the HTTP response cache.",
	})
	metricDownloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagebridge",
		Name:      "downloads_total",
		Help:      "Number of remote images downloaded.",
	})
	metricDownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imagebridge",
		Name:      "download_errors_total",
		Help:      "Total remote image fetch failures.",
	})
	metricDecodeDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagebridge",
		Name:      "decode_seconds",
		Help:      "Time taken to decode downloaded images in seconds.",
	})
	metricTransformationDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagebridge",
		Name:      "transformation_seconds",
		Help:      "Time taken for image transformations in seconds.",
	})
	metricEncodeDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "imagebridge",
		Name:      "encode_seconds",
		Help:      "Time taken to encode images in seconds.",
	})
	metricRequestDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "http",
		Name:      "response_time_seconds",
		Help:      "Request response times",
	})
)

func init() {
	prometheus.MustRegister(metricCacheHits)
	prometheus.MustRegister(metricCacheMisses)
	prometheus.MustRegister(metricResponseCacheHits)
	prometheus.MustRegister(metricDownloads)
	prometheus.MustRegister(metricDownloadErrors)
	prometheus.MustRegister(metricDecodeDuration)
	prometheus.MustRegister(metricTransformationDuration)
	prometheus.MustRegister(metricEncodeDuration)
	prometheus.MustRegister(metricRequestDuration)
}
