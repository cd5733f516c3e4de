// Package trainsync buffers training records locally until an external
// collaborator uploads and acknowledges them.
package trainsync

import (
	"fmt"
	"sync"

	"github.com/danielpatrickdp/context-core/internal/clock"
	"github.com/google/uuid"
)

// DefaultMaxRecords bounds the buffer until SetMaxRecords overrides it.
const DefaultMaxRecords = 200

// #region buffer

// Buffer is the bounded, synced-flagged training record log. All methods
// are safe for concurrent use.
type Buffer struct {
	mu           sync.Mutex
	deviceID     string
	records      []Record
	lastSyncTime int64
	maxRecords   int
	clk          clock.Clock
}

// NewBuffer creates an empty buffer with the default bound.
func NewBuffer(clk clock.Clock) *Buffer {
	return &Buffer{
		maxRecords: DefaultMaxRecords,
		clk:        clk,
	}
}

// Init sets the device id stamped into exports.
func (b *Buffer) Init(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceID = deviceID
}

// DeviceID returns the configured device id.
func (b *Buffer) DeviceID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deviceID
}

// SetMaxRecords changes the buffer bound. Zero or negative is rejected.
func (b *Buffer) SetMaxRecords(max int) error {
	if max <= 0 {
		return fmt.Errorf("setMaxRecords: bound %d must be positive", max)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxRecords = max
	return nil
}

// #endregion buffer

// #region record-ops

// RecordRuleMatch buffers a rule-match sample.
func (b *Buffer) RecordRuleMatch(data RuleMatchData) {
	b.append(Record{
		Type: RuleMatch,
		StringData: map[string]string{
			"ruleId":            data.RuleID,
			"action":            data.Action,
			"timeOfDay":         data.TimeOfDay,
			"motionState":       data.MotionState,
			"prevMotionState":   data.PrevMotionState,
			"prevActivityState": data.PrevActivityState,
			"geofence":          data.Geofence,
			"wifiSsid":          data.WifiSsid,
		},
		NumericData: map[string]float64{
			"confidence":       data.Confidence,
			"hour":             float64(data.Hour),
			"activityDuration": float64(data.ActivityDuration),
			"batteryLevel":     float64(data.BatteryLevel),
		},
		BoolData: map[string]bool{
			"isCharging": data.IsCharging,
		},
	}, "rm")
}

// RecordFeedback buffers a user-feedback sample.
func (b *Buffer) RecordFeedback(data UserFeedbackData) {
	b.append(Record{
		Type: UserFeedback,
		StringData: map[string]string{
			"ruleId":            data.RuleID,
			"feedbackType":      data.FeedbackType,
			"originalValue":     data.OriginalValue,
			"adjustedValue":     data.AdjustedValue,
			"timeOfDay":         data.TimeOfDay,
			"motionState":       data.MotionState,
			"prevActivityState": data.PrevActivityState,
			"geofence":          data.Geofence,
		},
		NumericData: map[string]float64{
			"hour":             float64(data.Hour),
			"activityDuration": float64(data.ActivityDuration),
		},
		BoolData: map[string]bool{},
	}, "fb")
}

// RecordStateTransition buffers a motion transition sample.
func (b *Buffer) RecordStateTransition(data StateTransitionData) {
	b.append(Record{
		Type: StateTransition,
		StringData: map[string]string{
			"prevState": data.PrevState,
			"newState":  data.NewState,
			"timeOfDay": data.TimeOfDay,
			"geofence":  data.Geofence,
			"wifiSsid":  data.WifiSsid,
		},
		NumericData: map[string]float64{
			"duration": float64(data.Duration),
			"hour":     float64(data.Hour),
		},
		BoolData: map[string]bool{},
	}, "st")
}

// RecordGeofenceFeature buffers a geofence dwell sample.
func (b *Buffer) RecordGeofenceFeature(data GeofenceFeatureData) {
	b.append(Record{
		Type: GeofenceFeature,
		StringData: map[string]string{
			"geofenceId":   data.GeofenceID,
			"geofenceName": data.GeofenceName,
			"wifiSsid":     data.WifiSsid,
			"timeOfDay":    data.TimeOfDay,
		},
		NumericData: map[string]float64{
			"hour":     float64(data.Hour),
			"duration": float64(data.Duration),
		},
		BoolData: map[string]bool{},
	}, "gf")
}

// append stamps and stores a record, then enforces the bound.
func (b *Buffer) append(rec Record, prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec.ID = fmt.Sprintf("%s_%s", prefix, uuid.New().String())
	rec.Timestamp = clock.NowMs(b.clk)
	rec.Synced = false

	b.records = append(b.records, rec)
	b.pruneIfNeeded()
}

// pruneIfNeeded drops synced records in FIFO order once the bound is
// exceeded, then the oldest regardless. Callers hold the lock.
func (b *Buffer) pruneIfNeeded() {
	if len(b.records) <= b.maxRecords {
		return
	}

	kept := b.records[:0]
	over := len(b.records) - b.maxRecords
	for _, rec := range b.records {
		if over > 0 && rec.Synced {
			over--
			continue
		}
		kept = append(kept, rec)
	}
	b.records = kept

	if len(b.records) > b.maxRecords {
		b.records = b.records[len(b.records)-b.maxRecords:]
	}
}

// #endregion record-ops

// #region sync

// MarkAsSynced flips the synced flag on the given ids and stamps the sync
// time.
func (b *Buffer) MarkAsSynced(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for i := range b.records {
		if idSet[b.records[i].ID] {
			b.records[i].Synced = true
		}
	}
	b.lastSyncTime = clock.NowMs(b.clk)
}

// CleanupSynced removes every acknowledged record.
func (b *Buffer) CleanupSynced() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.records[:0]
	for _, rec := range b.records {
		if !rec.Synced {
			kept = append(kept, rec)
		}
	}
	b.records = kept
}

// Stats summarizes pending/synced counts and the last sync time.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		LastSyncTime: b.lastSyncTime,
		TotalRecords: int64(len(b.records)),
	}
	for _, rec := range b.records {
		if rec.Synced {
			stats.SyncedCount++
		} else {
			stats.PendingCount++
		}
	}
	return stats
}

// Clear drops all records and resets the sync time. Device id and bound
// survive.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
	b.lastSyncTime = 0
}

// #endregion sync
