package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/context-core/internal/clock"
	"github.com/danielpatrickdp/context-core/internal/feedback"
	"github.com/danielpatrickdp/context-core/internal/geo"
	"github.com/danielpatrickdp/context-core/internal/motion"
	"github.com/danielpatrickdp/context-core/internal/rules"
	"github.com/danielpatrickdp/context-core/internal/store"
	"github.com/danielpatrickdp/context-core/internal/trainsync"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	t0 := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	return New(DefaultConfig(), WithClock(clock.Func(func() time.Time { return t0 })))
}

func still() motion.AccelSample { return motion.AccelSample{Z: 9.81} }

func TestMotionTransitionDrivesGovernor(t *testing.T) {
	e := testEngine(t)

	// Confirm stationary: third detect flips state and changes intervals.
	var changed bool
	for i := 0; i < 3; i++ {
		_, changed = e.IngestAccel(still(), 0)
	}
	if !changed {
		t.Fatal("confirmed transition should change intervals")
	}

	// Steady state: no further interval changes.
	if _, changed = e.IngestAccel(still(), 0); changed {
		t.Fatal("steady state should not change intervals")
	}

	snap := e.Snapshot()
	if snap.MotionState != "stationary" {
		t.Fatalf("tray motionState = %q", snap.MotionState)
	}

	// Transition into walking after hysteresis.
	for i := 0; i < 3; i++ {
		_, changed = e.IngestAccel(still(), 1.2)
	}
	if !changed {
		t.Fatal("walking transition should change intervals")
	}
	if e.Snapshot().MotionState != "walking" {
		t.Fatalf("tray motionState = %q", e.Snapshot().MotionState)
	}

	// Transitions are buffered for training.
	if e.Buffer.Stats().TotalRecords < 2 {
		t.Fatalf("expected transition records, got %d", e.Buffer.Stats().TotalRecords)
	}
}

func TestIngestGPSValidation(t *testing.T) {
	e := testEngine(t)

	if _, err := e.IngestGPS(geo.GeoPoint{Latitude: 91, Longitude: 0}, "", nil); err == nil {
		t.Fatal("out-of-range latitude should be rejected")
	}
	if _, err := e.IngestGPS(geo.GeoPoint{Latitude: 0, Longitude: 200}, "", nil); err == nil {
		t.Fatal("out-of-range longitude should be rejected")
	}
	if _, err := e.IngestGPS(geo.GeoPoint{Latitude: 10, Longitude: 10, Accuracy: -1}, "", nil); err == nil {
		t.Fatal("negative accuracy should be rejected")
	}
}

func TestGPSLearningGate(t *testing.T) {
	e := testEngine(t)
	e.SetGeofences([]geo.Geofence{{ID: "home", Latitude: 39.9042, Longitude: 116.4074, RadiusMeters: 100}})

	inside := geo.GeoPoint{Latitude: 39.9042, Longitude: 116.4074, Accuracy: 10}

	// High-accuracy fix inside: learns.
	if _, err := e.IngestGPS(inside, "HomeNet", []string{"earbuds"}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	sig, ok := e.LearnedSignals("home")
	if !ok || sig.TotalObservations != 1 || sig.WifiSsids["HomeNet"] != 1 {
		t.Fatalf("signals after accurate fix: %+v ok=%v", sig, ok)
	}

	// Low-accuracy fix inside: gate closed.
	inside.Accuracy = 80
	e.IngestGPS(inside, "HomeNet", nil)
	sig, _ = e.LearnedSignals("home")
	if sig.TotalObservations != 1 {
		t.Fatalf("low-accuracy fix leaked through the gate: %+v", sig)
	}

	// Accurate fix outside: gate closed.
	outside := geo.GeoPoint{Latitude: 39.92, Longitude: 116.4074, Accuracy: 10}
	e.IngestGPS(outside, "HomeNet", nil)
	sig, _ = e.LearnedSignals("home")
	if sig.TotalObservations != 1 {
		t.Fatalf("outside fix leaked through the gate: %+v", sig)
	}

	// The place learner saw the visit too.
	if !e.PlaceSignals.MatchesWifi("home", "HomeNet") {
		t.Fatal("place signal learner missed the visit")
	}
}

func TestGPSSetsGeofenceWhenConfident(t *testing.T) {
	e := testEngine(t)
	e.SetGeofences([]geo.Geofence{{ID: "home", Latitude: 39.9042, Longitude: 116.4074, RadiusMeters: 100}})

	results, err := e.IngestGPS(geo.GeoPoint{Latitude: 39.9042, Longitude: 116.4074, Accuracy: 10}, "", nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(results) != 1 || results[0].Confidence != 1.0 {
		t.Fatalf("fusion results: %+v", results)
	}
	if g, ok := e.Snapshot().Get("geofence"); !ok || g != "home" {
		t.Fatalf("tray geofence = %q ok=%v", g, ok)
	}
}

func TestDiscoverPlacesBuildsGeofences(t *testing.T) {
	e := testEngine(t)

	night := time.Date(2025, 6, 5, 22, 0, 0, 0, time.UTC)
	for n := 0; n < 5; n++ {
		for i := 0; i < 10; i++ {
			ts := night.AddDate(0, 0, n).Add(time.Duration(i) * 50 * time.Minute)
			e.IngestGPS(geo.GeoPoint{
				Latitude:  39.9042 + float64(i%3)*0.00005,
				Longitude: 116.4074,
				Timestamp: ts.UnixMilli(),
				Accuracy:  10,
			}, "", nil)
		}
	}

	results, err := e.DiscoverPlaces()
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(results) != 1 || results[0].SuggestedCategory != "home" {
		t.Fatalf("results: %+v", results)
	}

	fences := e.Geofences()
	if len(fences) != 1 || fences[0].Name != "家" || fences[0].Category != "home" {
		t.Fatalf("geofences: %+v", fences)
	}
}

func TestChooseActionAndOutcome(t *testing.T) {
	e := testEngine(t)
	if err := e.Rules.AddRule(rules.Rule{ID: "bedtime", Enabled: true, Action: "remind",
		Conditions: []rules.Condition{{Key: "hour", Op: "eq", Value: "22"}}}); err != nil {
		t.Fatalf("addRule: %v", err)
	}

	chosen, decisionID, ok := e.ChooseAction()
	if !ok {
		t.Fatal("rule should match at 22:00")
	}
	if chosen.ID != "bedtime" || decisionID == "" {
		t.Fatalf("chosen=%+v decision=%q", chosen, decisionID)
	}

	if err := e.RecordOutcome(decisionID, 1.0); err != nil {
		t.Fatalf("recordOutcome: %v", err)
	}
	if e.Bandit.ArmCount() != 1 {
		t.Fatalf("bandit arms = %d", e.Bandit.ArmCount())
	}

	// Second report on the same decision fails.
	if err := e.RecordOutcome(decisionID, 1.0); err == nil {
		t.Fatal("duplicate outcome should fail")
	}

	// A rule-match training record was buffered.
	if e.Buffer.Stats().TotalRecords != 1 {
		t.Fatalf("buffer records = %d", e.Buffer.Stats().TotalRecords)
	}
}

func TestChooseActionNoMatch(t *testing.T) {
	e := testEngine(t)
	if _, _, ok := e.ChooseAction(); ok {
		t.Fatal("no rules: nothing to choose")
	}
}

func TestRecordFeedbackFansOut(t *testing.T) {
	e := testEngine(t)

	if err := e.RecordFeedback("r1", feedback.Useful, nil); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if err := e.RecordFeedback("r1", feedback.Adjust, &feedback.Adjustment{Key: "hour", OriginalValue: 22, AdjustedValue: 23}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := e.RecordFeedback("r1", feedback.Adjust, nil); err == nil {
		t.Fatal("adjust without payload should fail")
	}

	pref, ok := e.Feedback.Preference("r1")
	if !ok || pref.UsefulCount != 1 || pref.AdjustCount != 1 {
		t.Fatalf("preference: %+v", pref)
	}
	if pref.PreferredHour != 23 {
		t.Fatalf("preferredHour = %f", pref.PreferredHour)
	}
	if e.Buffer.Stats().TotalRecords != 2 {
		t.Fatalf("buffer records = %d", e.Buffer.Stats().TotalRecords)
	}
	if e.Bandit.ArmCount() != 1 {
		t.Fatalf("bandit arms = %d", e.Bandit.ArmCount())
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "core.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	t0 := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	clk := clock.Func(func() time.Time { return t0 })

	e := New(DefaultConfig(), WithStore(s), WithClock(clk))
	e.SetGeofences([]geo.Geofence{{ID: "home", Latitude: 39.9042, Longitude: 116.4074, RadiusMeters: 100}})
	e.IngestGPS(geo.GeoPoint{Latitude: 39.9042, Longitude: 116.4074, Accuracy: 10}, "HomeNet", nil)
	e.Buffer.RecordRuleMatch(trainsync.RuleMatchData{RuleID: "r1"})

	if err := e.SaveState(); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New(DefaultConfig(), WithStore(s), WithClock(clk))
	if err := restored.LoadState(); err != nil {
		t.Fatalf("load: %v", err)
	}

	sig, ok := restored.LearnedSignals("home")
	if !ok || sig.WifiSsids["HomeNet"] != 1 {
		t.Fatalf("restored signals: %+v ok=%v", sig, ok)
	}
	if restored.Buffer.Stats().TotalRecords != 1 {
		t.Fatalf("restored buffer records = %d", restored.Buffer.Stats().TotalRecords)
	}
}
