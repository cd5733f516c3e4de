// Package feedback accumulates user responses to fired rules into
// per-rule preferences that shift recommendation parameters.
package feedback

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

// #region types

// Type is a feedback kind. The codes are a stable host contract.
type Type int

const (
	Useful     Type = 0
	Inaccurate Type = 1
	Dismiss    Type = 2
	Adjust     Type = 3
)

// Context captures the situation a feedback arrived in.
type Context struct {
	RuleID      string
	RuleName    string
	Hour        int
	Minute      int
	TimeOfDay   string
	IsWeekend   bool
	Latitude    float64
	Longitude   float64
	Geofence    string
	WifiSsid    string
	MotionState string
	Payload     string
}

// Adjustment is a user-supplied parameter change.
type Adjustment struct {
	Key           string // "hour" | "minute"
	OriginalValue float64
	AdjustedValue float64
	Unit          string
}

// Record is one stored feedback event. Adjustment is meaningful only for
// Adjust records.
type Record struct {
	ID         string
	Type       Type
	Context    Context
	Adjustment Adjustment
	Timestamp  int64
}

// Preference is the learned per-rule summary.
type Preference struct {
	RuleID           string
	PreferredHour    float64
	PreferredMinute  float64
	HourAdjustment   float64
	Confidence       float64
	UsefulCount      int
	InaccurateCount  int
	DismissCount     int
	AdjustCount      int
	LastFeedbackTime int64
}

// #endregion types

// #region learner

// Learner keeps the raw feedback log and the per-rule preferences.
type Learner struct {
	mu          sync.Mutex
	records     []Record
	preferences map[string]*Preference
	clk         clock.Clock
	seq         int64
}

// NewLearner creates an empty learner.
func NewLearner(clk clock.Clock) *Learner {
	return &Learner{
		preferences: make(map[string]*Preference),
		clk:         clk,
	}
}

// #endregion learner

// #region record

// RecordSimple stores a Useful/Inaccurate/Dismiss feedback for a rule.
func (l *Learner) RecordSimple(ruleID string, typ Type, ctx Context) error {
	if typ == Adjust {
		return fmt.Errorf("recordSimple %q: adjust feedback requires an adjustment", ruleID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(Record{
		ID:        l.nextID(),
		Type:      typ,
		Context:   ctx,
		Timestamp: clock.NowMs(l.clk),
	}, ruleID)
	return nil
}

// RecordAdjustment stores an Adjust feedback carrying the changed value.
func (l *Learner) RecordAdjustment(ruleID string, ctx Context, adj Adjustment) error {
	if adj.Key == "" {
		return fmt.Errorf("recordAdjustment %q: empty adjustment key", ruleID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(Record{
		ID:         l.nextID(),
		Type:       Adjust,
		Context:    ctx,
		Adjustment: adj,
		Timestamp:  clock.NowMs(l.clk),
	}, ruleID)
	return nil
}

// record appends and folds into the preference. Callers hold the lock.
func (l *Learner) record(rec Record, ruleID string) {
	rec.Context.RuleID = ruleID
	l.records = append(l.records, rec)

	pref, ok := l.preferences[ruleID]
	if !ok {
		pref = &Preference{RuleID: ruleID, PreferredHour: -1, PreferredMinute: -1}
		l.preferences[ruleID] = pref
	}

	switch rec.Type {
	case Useful:
		pref.UsefulCount++
	case Inaccurate:
		pref.InaccurateCount++
	case Dismiss:
		pref.DismissCount++
	case Adjust:
		pref.AdjustCount++
		switch rec.Adjustment.Key {
		case "hour":
			pref.PreferredHour = rec.Adjustment.AdjustedValue
			pref.HourAdjustment = rec.Adjustment.AdjustedValue - rec.Adjustment.OriginalValue
		case "minute":
			pref.PreferredMinute = rec.Adjustment.AdjustedValue
		}
	}

	pref.LastFeedbackTime = rec.Timestamp

	total := pref.UsefulCount + pref.InaccurateCount + pref.AdjustCount
	if total > 0 {
		pref.Confidence = minFloat(1.0, float64(total)/5.0)
	}
}

func (l *Learner) nextID() string {
	l.seq++
	return fmt.Sprintf("fb_%d_%d", clock.NowMs(l.clk), l.seq)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// #endregion record

// #region query

// Preference returns a copy of the learned summary for a rule.
func (l *Learner) Preference(ruleID string) (Preference, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pref, ok := l.preferences[ruleID]
	if !ok {
		return Preference{}, false
	}
	return *pref, true
}

// AdjustedHour returns the learned preferred hour once confidence exceeds
// 0.5, the original hour otherwise.
func (l *Learner) AdjustedHour(ruleID string, originalHour float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pref, ok := l.preferences[ruleID]; ok && pref.Confidence > 0.5 {
		return pref.PreferredHour
	}
	return originalHour
}

// ClearPreference drops the learned summary for a rule.
func (l *Learner) ClearPreference(ruleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.preferences, ruleID)
}

// #endregion query

// #region export

// preferenceJSON is the persisted per-rule shape.
type preferenceJSON struct {
	PreferredHour   float64 `json:"preferredHour"`
	PreferredMinute float64 `json:"preferredMinute"`
	HourAdjustment  float64 `json:"hourAdjustment"`
	Confidence      float64 `json:"confidence"`
	UsefulCount     int     `json:"usefulCount"`
	InaccurateCount int     `json:"inaccurateCount"`
}

// ExportPreferences serializes every rule's preference keyed by rule id.
func (l *Learner) ExportPreferences() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]preferenceJSON, len(l.preferences))
	for id, pref := range l.preferences {
		out[id] = preferenceJSON{
			PreferredHour:   pref.PreferredHour,
			PreferredMinute: pref.PreferredMinute,
			HourAdjustment:  pref.HourAdjustment,
			Confidence:      pref.Confidence,
			UsefulCount:     pref.UsefulCount,
			InaccurateCount: pref.InaccurateCount,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("export preferences: %w", err)
	}
	return string(data), nil
}

// #endregion export
