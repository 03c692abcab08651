// Package metrics exposes Prometheus collectors for the pipeline service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradcafe_pages_fetched_total",
			Help: "Listing page fetch attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	entriesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcafe_entries_extracted_total",
			Help: "Raw applicant entries extracted from listing pages.",
		},
	)

	detailFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradcafe_detail_fetches_total",
			Help: "Detail-page enrichment fetches, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	recordsParsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcafe_records_parsed_total",
			Help: "Raw entries successfully normalized into structured records.",
		},
	)

	rowsInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcafe_rows_inserted_total",
			Help: "Rows newly inserted into the applicants table.",
		},
	)

	pullJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradcafe_pull_jobs_total",
			Help: "Background pull jobs, labeled by final status.",
		},
		[]string{"status"},
	)
)

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch records one listing page fetch attempt outcome
// (ok, http_error, transport_error, abandoned).
func ObservePageFetch(outcome string) {
	pagesFetchedTotal.WithLabelValues(outcome).Inc()
}

// ObserveEntriesExtracted adds to the extracted entry counter.
func ObserveEntriesExtracted(n int) {
	entriesExtractedTotal.Add(float64(n))
}

// ObserveDetailFetch records one enrichment fetch outcome
// (ok, http_error, transport_error).
func ObserveDetailFetch(outcome string) {
	detailFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecordsParsed adds to the normalized record counter.
func ObserveRecordsParsed(n int) {
	if n > 0 {
		recordsParsedTotal.Add(float64(n))
	}
}

// ObserveRowsInserted adds to the inserted row counter.
func ObserveRowsInserted(n int64) {
	if n > 0 {
		rowsInsertedTotal.Add(float64(n))
	}
}

// ObservePullJob records the final status of a background pull
// (succeeded, failed, panicked, rejected).
func ObservePullJob(status string) {
	pullJobsTotal.WithLabelValues(status).Inc()
}
