package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the ingestion diagnostics. Skipped and invalid laps are only
// ever counted here; they produce no stored records.
type Metrics struct {
	LinesRead     prometheus.Counter
	LapsPersisted prometheus.Counter
	LapsInvalid   prometheus.Counter
	LapsSkipped   prometheus.Counter
	ParseFailures prometheus.Counter
	StoreRetries  prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acstats",
			Subsystem: "ingest",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		LinesRead:     counter("lines_read_total", "Log lines consumed across all watched files."),
		LapsPersisted: counter("laps_persisted_total", "Clean laps written to the store."),
		LapsInvalid:   counter("laps_invalid_total", "Laps rejected for cuts or implausible times."),
		LapsSkipped:   counter("laps_skipped_total", "Laps dropped because the session context was incomplete."),
		ParseFailures: counter("parse_failures_total", "Recognised lines with unusable payloads."),
		StoreRetries:  counter("store_retries_total", "Failed store write attempts, including final failures."),
	}

	if registerer != nil {
		registerer.MustRegister(m.LinesRead, m.LapsPersisted, m.LapsInvalid, m.LapsSkipped, m.ParseFailures, m.StoreRetries)
	}

	return m
}
