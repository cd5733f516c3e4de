package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// #region event

// Event is one recorded sensor sample. Kind selects which fields are
// meaningful; the rest stay zero.
type Event struct {
	Kind      string  `json:"kind"` // "accel" | "gps" | "wifi" | "battery" | "network"
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Z         float64 `json:"z,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Ssid      string  `json:"ssid,omitempty"`
	Level     int     `json:"level,omitempty"`
	Charging  bool    `json:"charging,omitempty"`
	Network   string  `json:"network,omitempty"`
}

var knownKinds = map[string]bool{
	"accel":   true,
	"gps":     true,
	"wifi":    true,
	"battery": true,
	"network": true,
}

// #endregion event

// #region loader

// LoadFixture reads a JSONL sensor fixture: one event per line. Blank
// lines are ignored; malformed and unknown-kind lines are skipped and
// their count is returned alongside the events, which come back sorted by
// timestamp.
func LoadFixture(path string) ([]Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open fixture %s: %w", path, err)
	}
	defer f.Close()

	var events []Event
	skipped := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || !knownKinds[ev.Kind] {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read fixture %s: %w", path, err)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return events, skipped, nil
}

// #endregion loader
