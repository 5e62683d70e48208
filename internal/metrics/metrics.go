// Package metrics holds the Prometheus collectors shared by the api and the
// worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollwave",
		Name:      "votes_total",
		Help:      "Vote attempts by result.",
	}, []string{"result"})

	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollwave",
		Name:      "pipeline_runs_total",
		Help:      "Publishing pipeline runs by outcome.",
	}, []string{"outcome"})

	QuotaDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollwave",
		Name:      "quota_denied_total",
		Help:      "Generation calls refused by the quota gate, by window.",
	}, []string{"window"})

	GenerationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pollwave",
		Name:      "generation_requests_total",
		Help:      "External generation calls by kind and result.",
	}, []string{"kind", "result"})
)
