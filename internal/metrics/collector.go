// Package metrics publishes operational metrics for the HTTP surface and the
// background jobs.
package metrics

import "time"

// Collector records request and job outcomes. Implementations must be safe
// for concurrent use.
type Collector interface {
	// RecordRequest records one handled HTTP request.
	RecordRequest(method, endpoint, status string, duration time.Duration)

	// RecordJob records one background job run.
	RecordJob(name string, duration time.Duration, success bool)
}

// Noop discards all metrics. Used when metrics publishing is disabled.
type Noop struct{}

var _ Collector = (*Noop)(nil)

func (Noop) RecordRequest(method, endpoint, status string, duration time.Duration) {}

func (Noop) RecordJob(name string, duration time.Duration, success bool) {}
