// Package replay feeds recorded sensor fixtures through the engine so
// behavior can be reproduced off-device.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/context-core/internal/engine"
	"github.com/danielpatrickdp/context-core/internal/geo"
	"github.com/danielpatrickdp/context-core/internal/motion"
	"go.uber.org/zap"
)

// #region types

// Summary aggregates one replay run.
type Summary struct {
	Events           int
	Skipped          int
	Transitions      int
	IntervalChanges  int
	GPSFixes         int
	RejectedFixes    int
	Clusters         int
	RuleMatches      int
	FinalMotionState string
}

// Harness drives an engine with fixture events.
type Harness struct {
	eng *engine.Engine
	log *zap.Logger
}

// NewHarness wraps an engine. log may be nil.
func NewHarness(eng *engine.Engine, log *zap.Logger) *Harness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{eng: eng, log: log}
}

// #endregion types

// #region run

// Run replays events in order, then runs place discovery and a final
// rule evaluation.
func (h *Harness) Run(events []Event) (Summary, error) {
	var summary Summary
	summary.Events = len(events)

	for _, ev := range events {
		switch ev.Kind {
		case "accel":
			result, changed := h.eng.IngestAccel(motion.AccelSample{
				X: ev.X, Y: ev.Y, Z: ev.Z, Timestamp: ev.Timestamp,
			}, ev.Speed)
			if result.StateChanged {
				summary.Transitions++
			}
			if changed {
				summary.IntervalChanges++
			}
		case "gps":
			_, err := h.eng.IngestGPS(geo.GeoPoint{
				Latitude:  ev.Latitude,
				Longitude: ev.Longitude,
				Timestamp: ev.Timestamp,
				Accuracy:  ev.Accuracy,
			}, ev.Ssid, nil)
			if err != nil {
				summary.RejectedFixes++
				h.log.Warn("fix rejected", zap.Error(err))
				continue
			}
			summary.GPSFixes++
		case "wifi":
			h.eng.IngestWifi(ev.Ssid)
		case "battery":
			if err := h.eng.IngestBattery(ev.Level, ev.Charging); err != nil {
				h.log.Warn("battery sample rejected", zap.Error(err))
			}
		case "network":
			h.eng.IngestNetwork(ev.Network)
		default:
			return summary, fmt.Errorf("replay: unknown event kind %q", ev.Kind)
		}
	}

	clusters, err := h.eng.DiscoverPlaces()
	if err != nil {
		return summary, fmt.Errorf("replay: %w", err)
	}
	summary.Clusters = len(clusters)
	summary.RuleMatches = len(h.eng.EvaluateRules())
	summary.FinalMotionState = motion.StateToString(h.eng.Detector.LastState())

	return summary, nil
}

// #endregion run
