package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JournalEntries counts page entries stored, by stage.
	JournalEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xog_journal_entries_total",
			Help: "Total number of page entries written to the journal",
		},
		[]string{"stage"}, // "read", "written", "failed"
	)

	// JournalBytes tracks the payload bytes stored in the journal.
	JournalBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xog_journal_payload_bytes_total",
			Help: "Total payload bytes written to the journal",
		},
	)

	// JournalErrors tracks journal operation errors.
	JournalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xog_journal_errors_total",
			Help: "Total number of journal operation errors",
		},
		[]string{"operation"}, // "page", "state", "get"
	)
)
