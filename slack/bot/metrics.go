package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceivedTotal counts Slack events by type.
	EventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Subsystem: "slack",
		Name:      "events_received_total",
		Help:      "Slack events received, by event type.",
	}, []string{"type", "inner_type"})

	// EventsDuplicateTotal counts events skipped by deduplication.
	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strata",
		Subsystem: "slack",
		Name:      "events_duplicate_total",
		Help:      "Slack events skipped because they were already processed.",
	})

	// MessagesIgnoredTotal counts messages the bot chose not to answer.
	MessagesIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Subsystem: "slack",
		Name:      "messages_ignored_total",
		Help:      "Slack messages ignored, by reason.",
	}, []string{"reason"})

	// MessagesProcessedTotal counts messages handed to the workflow.
	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Subsystem: "slack",
		Name:      "messages_processed_total",
		Help:      "Slack messages processed, by channel type.",
	}, []string{"channel_type"})

	// AnswersTotal counts completed runs by outcome.
	AnswersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strata",
		Subsystem: "slack",
		Name:      "answers_total",
		Help:      "Answers delivered to Slack, by outcome.",
	}, []string{"outcome"})
)
