// Package sampling maps confirmed motion states to sensor duty cycles so
// callers reconfigure drivers only when the intervals actually change.
package sampling

import (
	"sync"

	"github.com/danielpatrickdp/context-core/internal/motion"
)

// #region intervals

// Intervals is one duty-cycle row: GPS and WiFi scan periods in
// milliseconds, accelerometer period in nanoseconds.
type Intervals struct {
	GPSIntervalMs   int64
	WifiIntervalMs  int64
	AccelIntervalNs int64
}

// #endregion intervals

// #region interval-table

// intervalTable holds the per-state duty cycles. Stationary is widest,
// driving tightest; transit shares the driving row.
var intervalTable = map[motion.State]Intervals{
	motion.Stationary: {GPSIntervalMs: 300_000, WifiIntervalMs: 300_000, AccelIntervalNs: 200_000_000},
	motion.Walking:    {GPSIntervalMs: 30_000, WifiIntervalMs: 30_000, AccelIntervalNs: 100_000_000},
	motion.Running:    {GPSIntervalMs: 15_000, WifiIntervalMs: 15_000, AccelIntervalNs: 50_000_000},
	motion.Driving:    {GPSIntervalMs: 10_000, WifiIntervalMs: 10_000, AccelIntervalNs: 50_000_000},
	motion.Transit:    {GPSIntervalMs: 10_000, WifiIntervalMs: 10_000, AccelIntervalNs: 50_000_000},
	motion.Unknown:    {GPSIntervalMs: 60_000, WifiIntervalMs: 60_000, AccelIntervalNs: 100_000_000},
}

// #endregion interval-table

// #region governor

// Governor tracks the current sampling intervals for the confirmed motion
// state.
type Governor struct {
	mu      sync.Mutex
	current Intervals
}

// NewGovernor starts at the Unknown row.
func NewGovernor() *Governor {
	return &Governor{current: intervalTable[motion.Unknown]}
}

// IntervalsForState returns the table row for a state without changing the
// governor. Unlisted states fall back to the Unknown row.
func IntervalsForState(state motion.State) Intervals {
	if iv, ok := intervalTable[state]; ok {
		return iv
	}
	return intervalTable[motion.Unknown]
}

// UpdateForState switches to the state's row and reports whether the
// intervals changed; callers reconfigure sensor drivers only on true.
func (g *Governor) UpdateForState(state motion.State) bool {
	next := IntervalsForState(state)

	g.mu.Lock()
	defer g.mu.Unlock()

	if next == g.current {
		return false
	}
	g.current = next
	return true
}

// CurrentIntervals returns the active row.
func (g *Governor) CurrentIntervals() Intervals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// AllIntervals returns the full state → intervals table.
func AllIntervals() map[motion.State]Intervals {
	out := make(map[motion.State]Intervals, len(intervalTable))
	for s, iv := range intervalTable {
		out[s] = iv
	}
	return out
}

// #endregion governor
