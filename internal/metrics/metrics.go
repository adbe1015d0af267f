// Package metrics holds the Prometheus collectors shared by the agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ragflow_http_request_duration_seconds",
			Help: "Duration of HTTP requests",
		},
		[]string{"method", "route"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_workflow_executions_total",
			Help: "Workflow executions by outcome",
		},
		[]string{"outcome"},
	)
	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_llm_calls_total",
			Help: "Total number of Gemini calls",
		},
		[]string{"operation", "status"},
	)
	SearchCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_search_calls_total",
			Help: "Web search lookups by result",
		},
		[]string{"result"},
	)
	ChunksIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragflow_chunks_ingested_total",
			Help: "Total number of chunks written to the vector store",
		},
	)
	WorkflowsStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ragflow_workflows_stored",
			Help: "Number of workflows in the store",
		},
	)
	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_documents_ingested_total",
			Help: "Document ingestions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(LLMCallsTotal)
	prometheus.MustRegister(SearchCallsTotal)
	prometheus.MustRegister(ChunksIngestedTotal)
	prometheus.MustRegister(DocumentsIngestedTotal)
	prometheus.MustRegister(WorkflowsStored)
}
