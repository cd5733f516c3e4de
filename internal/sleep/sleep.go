// Package sleep infers sleep episodes from motion history and maintains
// the user's typical bedtime and wake time.
package sleep

import (
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

// #region types

// Pattern is the learned sleep summary. Hours are fractional (0–23.99).
type Pattern struct {
	TypicalBedtime     float64
	TypicalWakeTime    float64
	SleepDurationHours float64
	Confidence         float64
	LastUpdated        int64
}

// Record is one sleep episode. Source is "wearable" or "inferred".
type Record struct {
	Date       string // YYYY-MM-DD of the bedtime, local time
	Bedtime    int64  // epoch ms
	WakeTime   int64  // epoch ms
	DurationMs int64
	Source     string
}

// MotionSnapshot is a timestamped motion-state observation.
type MotionSnapshot struct {
	State     string
	Timestamp int64
	Latitude  float64
	Longitude float64
	Geofence  string
}

const (
	historyWindowMs  = 24 * 60 * 60 * 1000
	minSleepMs       = 4 * 60 * 60 * 1000
	minHistoryPoints = 10
	defaultBedtime   = 22.0
	minConfidence    = 0.3
)

// #endregion types

// #region learner

// Learner accumulates motion snapshots and sleep records. All methods are
// safe for concurrent use.
type Learner struct {
	mu            sync.Mutex
	pattern       Pattern
	records       []Record
	motionHistory []MotionSnapshot
	clk           clock.Clock
	loc           *time.Location
}

// NewLearner creates a learner resolving local dates in loc (nil means
// time.Local).
func NewLearner(clk clock.Clock, loc *time.Location) *Learner {
	if loc == nil {
		loc = time.Local
	}
	return &Learner{clk: clk, loc: loc}
}

// #endregion learner

// #region motion

// RecordMotionChange appends a motion snapshot, trims the history to the
// trailing 24 h, and scans for completed stationary runs of at least 4 h,
// which are inferred as sleep episodes.
func (l *Learner) RecordMotionChange(snap MotionSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.motionHistory = append(l.motionHistory, snap)

	cutoff := snap.Timestamp - historyWindowMs
	for len(l.motionHistory) > 2 && l.motionHistory[0].Timestamp < cutoff {
		l.motionHistory = l.motionHistory[1:]
	}

	l.detectSleep()
}

// detectSleep finds stationary runs terminated by a non-stationary
// sample. Callers hold the lock.
func (l *Learner) detectSleep() {
	if len(l.motionHistory) < minHistoryPoints {
		return
	}

	var start, end int64
	inStationary := false

	for _, snap := range l.motionHistory {
		if snap.State == "stationary" {
			if !inStationary {
				start = snap.Timestamp
				inStationary = true
			}
			end = snap.Timestamp
			continue
		}
		if inStationary {
			if end-start >= minSleepMs {
				l.addInferred(start, end)
			}
			inStationary = false
		}
	}
}

// addInferred records a sleep episode found in motion history, deriving
// the date from the bedtime timestamp in the learner's location. Callers
// hold the lock.
func (l *Learner) addInferred(start, end int64) {
	date := time.UnixMilli(start).In(l.loc).Format("2006-01-02")
	for _, r := range l.records {
		if r.Source == "inferred" && r.Date == date {
			return // one inferred episode per night
		}
	}

	l.records = append(l.records, Record{
		Date:       date,
		Bedtime:    start,
		WakeTime:   end,
		DurationMs: end - start,
		Source:     "inferred",
	})
	l.updatePattern()
}

// #endregion motion

// #region wearable

// RecordFromWearable accepts an externally measured episode as-is.
func (l *Learner) RecordFromWearable(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Source == "" {
		rec.Source = "wearable"
	}
	if rec.Date == "" && rec.Bedtime > 0 {
		rec.Date = time.UnixMilli(rec.Bedtime).In(l.loc).Format("2006-01-02")
	}
	if rec.DurationMs == 0 && rec.WakeTime > rec.Bedtime {
		rec.DurationMs = rec.WakeTime - rec.Bedtime
	}
	l.records = append(l.records, rec)
	l.updatePattern()
}

// #endregion wearable

// #region pattern

// updatePattern recomputes the means over all accepted records. Callers
// hold the lock.
func (l *Learner) updatePattern() {
	var bedtimeSum, wakeSum, durationSum float64
	count := 0

	for _, rec := range l.records {
		if rec.Bedtime <= 0 || rec.WakeTime <= 0 {
			continue
		}
		bedtimeSum += fractionalHour(rec.Bedtime, l.loc)
		wakeSum += fractionalHour(rec.WakeTime, l.loc)
		durationSum += float64(rec.DurationMs) / (1000.0 * 60 * 60)
		count++
	}

	if count == 0 {
		return
	}

	l.pattern.TypicalBedtime = bedtimeSum / float64(count)
	l.pattern.TypicalWakeTime = wakeSum / float64(count)
	l.pattern.SleepDurationHours = durationSum / float64(count)
	l.pattern.Confidence = math.Min(1.0, float64(count)/7.0)
	l.pattern.LastUpdated = clock.NowMs(l.clk)
}

// fractionalHour converts an epoch-ms stamp to hours-of-day in loc.
func fractionalHour(ms int64, loc *time.Location) float64 {
	t := time.UnixMilli(ms).In(loc)
	return float64(t.Hour()) + float64(t.Minute())/60.0
}

// Pattern returns the learned summary.
func (l *Learner) Pattern() Pattern {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pattern
}

// RecommendedBedtimeReminder returns one hour before the typical bedtime,
// or the 22:00 default while confidence is below 0.3.
func (l *Learner) RecommendedBedtimeReminder() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pattern.Confidence < minConfidence {
		return defaultBedtime
	}
	reminder := l.pattern.TypicalBedtime - 1.0
	if reminder < 0 {
		reminder += 24
	}
	return reminder
}

// IsNearBedtime reports whether the given time is within marginMinutes of
// the typical bedtime, wrapping around midnight.
func (l *Learner) IsNearBedtime(hour, minute, marginMinutes int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := float64(hour) + float64(minute)/60.0
	bedtime := defaultBedtime
	if l.pattern.Confidence >= minConfidence {
		bedtime = l.pattern.TypicalBedtime
	}

	diff := math.Abs(current - bedtime)
	if diff > 12 {
		diff = 24 - diff
	}
	return diff*60 <= float64(marginMinutes)
}

// Clear drops all records, history and the learned pattern.
func (l *Learner) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.motionHistory = nil
	l.pattern = Pattern{}
}

// #endregion pattern
