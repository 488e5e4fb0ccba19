package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	adviceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_advice_requests_total",
		Help: "RAG advice invocations by mode.",
	}, []string{"mode"})

	adviceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rag_advice_outcomes_total",
		Help: "RAG outcomes by kind, including degraded branches.",
	}, []string{"kind"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_content_cache_hits_total",
		Help: "Content cache hits during retrieval.",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_content_cache_misses_total",
		Help: "Content cache misses during retrieval.",
	})
)
