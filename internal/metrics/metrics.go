// Package metrics holds the Prometheus collectors of the intake pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsProcessed counts pipeline decisions.
	// Labels: action (ignore, request_clarification, proceed_to_quote, error), reply (true, false)
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "freight_intake",
			Subsystem: "pipeline",
			Name:      "emails_processed_total",
			Help:      "Total number of emails processed by decision",
		},
		[]string{"action", "reply"},
	)

	// DuplicateMessages counts deliveries skipped because the message-id was already processed.
	DuplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "freight_intake",
			Subsystem: "pipeline",
			Name:      "duplicate_messages_total",
			Help:      "Total number of redelivered messages skipped",
		},
	)

	// ProcessingDuration tracks end-to-end processing time of one email.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "freight_intake",
			Subsystem: "pipeline",
			Name:      "processing_duration_seconds",
			Help:      "Duration of email processing in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OracleCalls counts extraction oracle calls.
	// Labels: provider, result (success, error, retry)
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "freight_intake",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total number of extraction oracle calls",
		},
		[]string{"provider", "result"},
	)

	// OracleDuration tracks extraction latency including retries.
	OracleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freight_intake",
			Subsystem: "oracle",
			Name:      "duration_seconds",
			Help:      "Duration of extraction oracle calls in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"provider"},
	)

	// ClarificationsSent counts outbound clarification emails.
	// Labels: result (success, error)
	ClarificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "freight_intake",
			Subsystem: "notifier",
			Name:      "clarifications_sent_total",
			Help:      "Total number of clarification emails sent",
		},
		[]string{"result"},
	)
)

// RecordDecision records the outcome of one processed email.
func RecordDecision(action string, reply bool, elapsed time.Duration) {
	r := "false"
	if reply {
		r = "true"
	}
	EmailsProcessed.WithLabelValues(action, r).Inc()
	ProcessingDuration.Observe(elapsed.Seconds())
}

// RecordOracleCall records a finished extraction call.
func RecordOracleCall(provider string, err error, elapsed time.Duration) {
	if err != nil {
		OracleCalls.WithLabelValues(provider, "error").Inc()
	} else {
		OracleCalls.WithLabelValues(provider, "success").Inc()
	}
	OracleDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordClarificationSent records the outcome of a clarification send.
func RecordClarificationSent(err error) {
	if err != nil {
		ClarificationsSent.WithLabelValues("error").Inc()
		return
	}
	ClarificationsSent.WithLabelValues("success").Inc()
}
