// Package tray holds the sensor data tray: a concurrency-safe mapping from
// string keys to time/quality-stamped values that every downstream
// component reads its context from.
package tray

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

// #region ttl-defaults

const (
	ttlVolatileMs = 5 * 60 * 1000
	ttlDeviceMs   = 10 * 60 * 1000
	ttlStableMs   = 60 * 60 * 1000
	ttlDefaultMs  = 5 * 60 * 1000
)

// defaultTTLs distinguishes volatile sensor keys from slow-moving device
// and calendar state.
var defaultTTLs = map[string]int64{
	"latitude":     ttlVolatileMs,
	"longitude":    ttlVolatileMs,
	"geofence":     ttlVolatileMs,
	"motionState":  ttlVolatileMs,
	"wifiSsid":     ttlVolatileMs,
	"wifiLostWork": ttlVolatileMs,
	"stepCount":    ttlVolatileMs,
	"batteryLevel": ttlDeviceMs,
	"isCharging":   ttlDeviceMs,
	"networkType":  ttlDeviceMs,
	"calendar":     ttlStableMs,
	"nextEvent":    ttlStableMs,
}

// #endregion ttl-defaults

// #region tray-struct

// optionalKeys are the snapshot fields that may be absent.
var optionalKeys = []string{"geofence", "wifiSsid", "wifiLostWork", "latitude", "longitude", "stepCount"}

// Tray is the process-wide sensor data tray. All methods are safe for
// concurrent use; a single mutex guards the map.
type Tray struct {
	mu      sync.Mutex
	entries map[string]entry
	ttls    map[string]int64
	clk     clock.Clock
}

// New creates an empty tray reading time from clk.
func New(clk clock.Clock) *Tray {
	return &Tray{
		entries: make(map[string]entry),
		ttls:    make(map[string]int64),
		clk:     clk,
	}
}

// #endregion tray-struct

// #region put-get

// Put upserts a value under key, stamping it with the current wall clock.
// Quality outside [0, 1] is rejected.
func (t *Tray) Put(key, value string, baseQuality float64, source string) error {
	if key == "" {
		return fmt.Errorf("put: empty key")
	}
	if baseQuality < 0 || baseQuality > 1 {
		return fmt.Errorf("put %q: quality %f out of [0,1]", key, baseQuality)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = entry{
		value:       value,
		baseQuality: baseQuality,
		source:      source,
		insertMs:    clock.NowMs(t.clk),
	}
	return nil
}

// Get reads a key. A stale entry still exposes its value with Fresh=false
// and effective quality 0 so callers can degrade gracefully.
func (t *Tray) Get(key string) ReadResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return ReadResult{}
	}

	age := clock.NowMs(t.clk) - e.insertMs
	ttl := t.ttlFor(key)
	return ReadResult{
		Value:   e.value,
		Exists:  true,
		Quality: effectiveQuality(e.baseQuality, age, ttl),
		Fresh:   age <= ttl,
		AgeMs:   age,
	}
}

// effectiveQuality decays the base quality linearly over the TTL window.
func effectiveQuality(base float64, ageMs, ttlMs int64) float64 {
	if ttlMs <= 0 {
		return 0
	}
	decay := 1.0 - float64(ageMs)/float64(ttlMs)
	if decay < 0 {
		decay = 0
	}
	return base * decay
}

// #endregion put-get

// #region ttl

// SetTTL overrides the freshness window for a key.
func (t *Tray) SetTTL(key string, ttlMs int64) error {
	if ttlMs < 0 {
		return fmt.Errorf("setTTL %q: negative ttl %d", key, ttlMs)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ttls[key] = ttlMs
	return nil
}

// ttlFor resolves key → explicit TTL → default table → fallback.
// Callers hold the lock.
func (t *Tray) ttlFor(key string) int64 {
	if ttl, ok := t.ttls[key]; ok {
		return ttl
	}
	if ttl, ok := defaultTTLs[key]; ok {
		return ttl
	}
	return ttlDefaultMs
}

// #endregion ttl

// #region snapshot

// Snapshot assembles a ContextSnapshot atomically. Required fields use the
// last-known value when stale and a computed default when absent; optional
// fields appear only while fresh.
func (t *Tray) Snapshot() ContextSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	nowMs := now.UnixMilli()

	snap := ContextSnapshot{
		TimeOfDay:    timeOfDay(now.Hour()),
		Hour:         fmt.Sprintf("%d", now.Hour()),
		DayOfWeek:    fmt.Sprintf("%d", int(now.Weekday())),
		IsWeekend:    fmt.Sprintf("%t", now.Weekday() == time.Saturday || now.Weekday() == time.Sunday),
		MotionState:  "unknown",
		BatteryLevel: "100",
		IsCharging:   "false",
		NetworkType:  "unknown",
		Optional:     make(map[string]string),
	}

	// Required fields fall back to last-known even when stale.
	if e, ok := t.entries["timeOfDay"]; ok {
		snap.TimeOfDay = e.value
	}
	if e, ok := t.entries["hour"]; ok {
		snap.Hour = e.value
	}
	if e, ok := t.entries["dayOfWeek"]; ok {
		snap.DayOfWeek = e.value
	}
	if e, ok := t.entries["isWeekend"]; ok {
		snap.IsWeekend = e.value
	}
	if e, ok := t.entries["motionState"]; ok {
		snap.MotionState = e.value
	}
	if e, ok := t.entries["batteryLevel"]; ok {
		snap.BatteryLevel = e.value
	}
	if e, ok := t.entries["isCharging"]; ok {
		snap.IsCharging = e.value
	}
	if e, ok := t.entries["networkType"]; ok {
		snap.NetworkType = e.value
	}

	for _, key := range optionalKeys {
		e, ok := t.entries[key]
		if !ok {
			continue
		}
		if nowMs-e.insertMs <= t.ttlFor(key) {
			snap.Optional[key] = e.value
		}
	}

	return snap
}

// timeOfDay buckets an hour the way the rule set names day parts.
func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// #endregion snapshot

// #region status

// Status returns a diagnostic row per entry, sorted by key.
func (t *Tray) Status() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	nowMs := clock.NowMs(t.clk)
	rows := make([]Status, 0, len(t.entries))
	for key, e := range t.entries {
		age := nowMs - e.insertMs
		ttl := t.ttlFor(key)
		rows = append(rows, Status{
			Key:              key,
			Value:            e.value,
			AgeMs:            age,
			TTLMs:            ttl,
			Fresh:            age <= ttl,
			EffectiveQuality: effectiveQuality(e.baseQuality, age, ttl),
			Source:           e.source,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// Clear removes all entries. TTL overrides survive.
func (t *Tray) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]entry)
}

// Size returns the number of stored entries.
func (t *Tray) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// #endregion status
