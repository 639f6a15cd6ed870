// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cytomine",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "HTTP requests issued to the Cytomine server",
	},
	[]string{"method", "status"},
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "cytomine",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Wall-clock duration of Cytomine HTTP requests",
	},
	[]string{"method"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
}

func observeRequest(method string, status int, seconds float64) {
	requestsTotal.With(prometheus.Labels{
		"method": method,
		"status": strconv.Itoa(status),
	}).Inc()
	requestDuration.With(prometheus.Labels{"method": method}).Observe(seconds)
}
