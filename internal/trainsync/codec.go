package trainsync

import (
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

// #region export-pending

// pendingRecordJSON flattens a record's field maps for upload.
type pendingRecordJSON struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

type pendingExportJSON struct {
	DeviceID  string              `json:"deviceId"`
	Timestamp int64               `json:"timestamp"`
	Records   []pendingRecordJSON `json:"records"`
}

// ExportPendingAsJSON emits only unsynced records, with the type as its
// snake_case wire name and all field maps flattened into one data object.
func (b *Buffer) ExportPendingAsJSON() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := pendingExportJSON{
		DeviceID:  b.deviceID,
		Timestamp: clock.NowMs(b.clk),
		Records:   []pendingRecordJSON{},
	}

	for _, rec := range b.records {
		if rec.Synced {
			continue
		}
		data := make(map[string]any, len(rec.StringData)+len(rec.NumericData)+len(rec.BoolData))
		for k, v := range rec.StringData {
			data[k] = v
		}
		for k, v := range rec.NumericData {
			data[k] = v
		}
		for k, v := range rec.BoolData {
			data[k] = v
		}
		export.Records = append(export.Records, pendingRecordJSON{
			ID:        rec.ID,
			Type:      wireNames[rec.Type],
			Timestamp: rec.Timestamp,
			Data:      data,
		})
	}

	out, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("export pending: %w", err)
	}
	return string(out), nil
}

// #endregion export-pending

// #region serialize

// bufferJSON is the full persisted buffer shape, synced flags included.
type bufferJSON struct {
	DeviceID     string   `json:"deviceId"`
	LastSyncTime int64    `json:"lastSyncTime"`
	MaxRecords   int      `json:"maxRecords"`
	Records      []Record `json:"records"`
}

// Serialize persists the entire buffer including synced flags, device id,
// last sync time and the bound.
func (b *Buffer) Serialize() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.records
	if records == nil {
		records = []Record{}
	}
	out, err := json.Marshal(bufferJSON{
		DeviceID:     b.deviceID,
		LastSyncTime: b.lastSyncTime,
		MaxRecords:   b.maxRecords,
		Records:      records,
	})
	if err != nil {
		return "", fmt.Errorf("serialize buffer: %w", err)
	}
	return string(out), nil
}

// Deserialize restores the buffer from a Serialize payload. Unknown keys
// are ignored and missing fields keep their defaults; an error is
// returned only when the top-level structure fails to parse.
func (b *Buffer) Deserialize(data string) error {
	var parsed bufferJSON
	parsed.MaxRecords = -1 // sentinel: absent keeps the current bound
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return fmt.Errorf("deserialize buffer: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if parsed.DeviceID != "" {
		b.deviceID = parsed.DeviceID
	}
	b.lastSyncTime = parsed.LastSyncTime
	if parsed.MaxRecords > 0 {
		b.maxRecords = parsed.MaxRecords
	}
	b.records = parsed.Records
	return nil
}

// #endregion serialize
