// Package metrics defines the observability hooks of the flash core.
//
// The interfaces here are optional: pass nil to disable metrics collection
// with zero overhead. The Prometheus implementation lives in
// pkg/metrics/prometheus, keeping the core free of a hard dependency on a
// metrics backend.
package metrics

import "time"

// FlashMetrics collects flash core operation metrics.
//
// Example usage:
//
//	// With metrics enabled
//	reg := prometheus.NewRegistry()
//	m := flashprom.NewFlashMetrics(reg, deviceID)
//	c, err := core.New(core.Config{..., Metrics: m})
//
//	// Without metrics (pass nil for zero overhead)
//	c, err := core.New(core.Config{...})
type FlashMetrics interface {
	// ObserveRead records a completed page read.
	ObserveRead(bytes int, duration time.Duration)

	// ObserveProgram records a completed page program.
	ObserveProgram(bytes int, duration time.Duration)

	// ObserveErase records a completed block erase.
	ObserveErase(duration time.Duration)

	// IncReadFailure counts a physical read failure.
	IncReadFailure()

	// IncProgramFailure counts a physical program failure.
	IncProgramFailure()

	// IncEraseFailure counts a physical erase failure.
	IncEraseFailure()

	// IncBadBlock counts a block quarantined for the given reason.
	IncBadBlock(reason string)

	// SetBlockStates updates the per-state block count gauges.
	SetBlockStates(good, worn, bad uint32)

	// SetAvgEraseCount updates the average erase count gauge.
	SetAvgEraseCount(avg float64)
}
