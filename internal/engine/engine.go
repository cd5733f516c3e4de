// Package engine owns the long-lived core components and orchestrates the
// ingest → snapshot → rules → bandit → feedback flow. Each owned
// component synchronizes itself; the engine's own lock covers only the
// state it holds directly (GPS history, geofences, learned signals,
// pending decisions).
package engine

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/danielpatrickdp/context-core/internal/bandit"
	"github.com/danielpatrickdp/context-core/internal/clock"
	"github.com/danielpatrickdp/context-core/internal/cluster"
	"github.com/danielpatrickdp/context-core/internal/feedback"
	"github.com/danielpatrickdp/context-core/internal/fusion"
	"github.com/danielpatrickdp/context-core/internal/geo"
	"github.com/danielpatrickdp/context-core/internal/motion"
	"github.com/danielpatrickdp/context-core/internal/placesig"
	"github.com/danielpatrickdp/context-core/internal/rules"
	"github.com/danielpatrickdp/context-core/internal/sampling"
	"github.com/danielpatrickdp/context-core/internal/sleep"
	"github.com/danielpatrickdp/context-core/internal/store"
	"github.com/danielpatrickdp/context-core/internal/trainsync"
	"github.com/danielpatrickdp/context-core/internal/tray"
	"go.uber.org/zap"
)

// #region config

// Config wires the engine's tunables.
type Config struct {
	DeviceID      string
	Alpha         float64 // bandit exploration coefficient
	Detector      motion.DetectorConfig
	Cluster       cluster.Config
	Fusion        fusion.Config
	MaxGPSHistory int
	// InPlaceConfidence is the fused-confidence floor above which the
	// tray's geofence field is set.
	InPlaceConfidence float64
}

// DefaultConfig returns the standard engine wiring.
func DefaultConfig() Config {
	return Config{
		DeviceID:          "device-unknown",
		Alpha:             1.0,
		Detector:          motion.DefaultDetectorConfig(),
		Cluster:           cluster.DefaultConfig(),
		Fusion:            fusion.DefaultConfig(),
		MaxGPSHistory:     5000,
		InPlaceConfidence: 0.6,
	}
}

// #endregion config

// #region engine

// pendingDecision keeps the context a selection was made in so a later
// reward can update the right arm with the right features.
type pendingDecision struct {
	actionID string
	ctx      map[string]string
}

// Engine is the Context container: every core component constructed once
// and owned here.
type Engine struct {
	config Config
	log    *zap.Logger
	clk    clock.Clock

	Tray         *tray.Tray
	Detector     *motion.Detector
	Governor     *sampling.Governor
	Rules        *rules.Engine
	Bandit       *bandit.LinUCB
	Feedback     *feedback.Learner
	Sleep        *sleep.Learner
	PlaceSignals *placesig.Learner
	Buffer       *trainsync.Buffer
	Fusion       *fusion.Fusion

	persist *store.Store // optional

	mu             sync.Mutex
	gpsHistory     []geo.GeoPoint
	geofences      []geo.Geofence
	learnedSignals map[string]fusion.LearnedSignals
	pending        map[string]pendingDecision

	lastMotionState  string
	lastMotionChange int64
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger (default zap.NewNop).
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithStore attaches the persistence store.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.persist = s }
}

// WithClock overrides the wall clock (default system).
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// New constructs the engine and all owned components.
func New(config Config, opts ...Option) *Engine {
	e := &Engine{
		config:         config,
		log:            zap.NewNop(),
		clk:            clock.System{},
		learnedSignals: make(map[string]fusion.LearnedSignals),
		pending:        make(map[string]pendingDecision),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Tray = tray.New(e.clk)
	e.Detector = motion.NewDetector(config.Detector)
	e.Governor = sampling.NewGovernor()
	e.Rules = rules.NewEngine()
	e.Bandit = bandit.New(config.Alpha)
	e.Feedback = feedback.NewLearner(e.clk)
	e.Sleep = sleep.NewLearner(e.clk, nil)
	e.PlaceSignals = placesig.NewLearner()
	e.Buffer = trainsync.NewBuffer(e.clk)
	e.Buffer.Init(config.DeviceID)
	e.Fusion = fusion.New(config.Fusion)

	return e
}

// #endregion engine

// #region ingest-motion

// IngestAccel runs one fused sample through the detector. On a confirmed
// transition it updates the tray, the sampling governor, the sleep
// learner and the training buffer, and returns the governor's verdict
// alongside the detection result.
func (e *Engine) IngestAccel(sample motion.AccelSample, gpsSpeed float64) (motion.Result, bool) {
	result := e.Detector.Detect(sample, gpsSpeed)
	if !result.StateChanged {
		return result, false
	}

	stateName := motion.StateToString(result.State)
	e.Tray.Put("motionState", stateName, result.Confidence, "motion")

	intervalsChanged := e.Governor.UpdateForState(result.State)
	if intervalsChanged {
		iv := e.Governor.CurrentIntervals()
		e.log.Info("sampling intervals changed",
			zap.String("state", stateName),
			zap.Int64("gpsIntervalMs", iv.GPSIntervalMs))
	}

	snap := e.Tray.Snapshot()
	nowMs := clock.NowMs(e.clk)

	e.mu.Lock()
	prevState := e.lastMotionState
	var duration int64
	if e.lastMotionChange > 0 {
		duration = nowMs - e.lastMotionChange
	}
	e.lastMotionState = stateName
	e.lastMotionChange = nowMs
	e.mu.Unlock()

	hour, _ := strconv.Atoi(snap.Hour)
	geofence, _ := snap.Get("geofence")
	wifiSsid, _ := snap.Get("wifiSsid")
	e.Buffer.RecordStateTransition(trainsync.StateTransitionData{
		PrevState: prevState,
		NewState:  stateName,
		Duration:  duration,
		TimeOfDay: snap.TimeOfDay,
		Hour:      hour,
		Geofence:  geofence,
		WifiSsid:  wifiSsid,
	})

	e.Sleep.RecordMotionChange(sleep.MotionSnapshot{
		State:     stateName,
		Timestamp: sample.Timestamp,
		Geofence:  geofence,
	})

	e.log.Info("motion transition",
		zap.String("prev", prevState),
		zap.String("state", stateName))

	return result, intervalsChanged
}

// #endregion ingest-motion

// #region ingest-gps

// IngestGPS records a fix, fuses it against the known geofences and runs
// the signal-learning gate. Non-finite or out-of-range coordinates are
// rejected without touching state.
func (e *Engine) IngestGPS(point geo.GeoPoint, wifiSsid string, btDevices []string) ([]fusion.Result, error) {
	if math.IsNaN(point.Latitude) || math.IsInf(point.Latitude, 0) ||
		math.IsNaN(point.Longitude) || math.IsInf(point.Longitude, 0) {
		return nil, fmt.Errorf("ingestGPS: non-finite coordinates")
	}
	if point.Latitude < -90 || point.Latitude > 90 || point.Longitude < -180 || point.Longitude > 180 {
		return nil, fmt.Errorf("ingestGPS: coordinates (%f, %f) out of range", point.Latitude, point.Longitude)
	}
	if point.Accuracy < 0 {
		return nil, fmt.Errorf("ingestGPS: negative accuracy %f", point.Accuracy)
	}

	e.Tray.Put("latitude", strconv.FormatFloat(point.Latitude, 'f', -1, 64), 1.0, "gps")
	e.Tray.Put("longitude", strconv.FormatFloat(point.Longitude, 'f', -1, 64), 1.0, "gps")

	e.mu.Lock()
	e.gpsHistory = append(e.gpsHistory, point)
	if len(e.gpsHistory) > e.config.MaxGPSHistory {
		e.gpsHistory = e.gpsHistory[len(e.gpsHistory)-e.config.MaxGPSHistory:]
	}
	fences := append([]geo.Geofence(nil), e.geofences...)
	signals := make(map[string]fusion.LearnedSignals, len(e.learnedSignals))
	for id, sig := range e.learnedSignals {
		signals[id] = sig
	}
	e.mu.Unlock()

	if len(fences) == 0 {
		return nil, nil
	}

	matches := geo.GeofencesAtLocation(point.Latitude, point.Longitude, fences)
	distances := make([]fusion.GeofenceDistance, 0, len(matches))
	for _, m := range matches {
		distances = append(distances, fusion.GeofenceDistance{GeofenceID: m.GeofenceID, Distance: m.Distance})
	}

	results := e.Fusion.CalculateAllConfidences(distances, point.Accuracy, wifiSsid, btDevices, signals)

	best := -1
	for i, r := range results {
		if best < 0 || r.Confidence > results[best].Confidence {
			best = i
		}
	}
	if best >= 0 && results[best].Confidence >= e.config.InPlaceConfidence {
		e.Tray.Put("geofence", results[best].GeofenceID, results[best].Confidence, results[best].Source)
	}

	// Learning gate: a high-accuracy fix inside a fence teaches its
	// signal maps.
	if point.Accuracy <= e.config.Fusion.LearningGpsAccuracyThreshold {
		for _, m := range matches {
			if !m.Inside {
				continue
			}
			e.mu.Lock()
			sig := e.learnedSignals[m.GeofenceID]
			fusion.LearnSignal(&sig, wifiSsid, btDevices)
			e.learnedSignals[m.GeofenceID] = sig
			e.mu.Unlock()

			var btDevice string
			if len(btDevices) > 0 {
				btDevice = btDevices[0]
			}
			e.PlaceSignals.Learn(m.GeofenceID, wifiSsid, btDevice, "")
		}
	}

	return results, nil
}

// IngestWifi updates the current SSID in the tray.
func (e *Engine) IngestWifi(ssid string) {
	e.Tray.Put("wifiSsid", ssid, 1.0, "wifi")
}

// IngestBattery updates battery level and charging state in the tray.
func (e *Engine) IngestBattery(level int, charging bool) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("ingestBattery: level %d out of [0,100]", level)
	}
	e.Tray.Put("batteryLevel", strconv.Itoa(level), 1.0, "battery")
	e.Tray.Put("isCharging", strconv.FormatBool(charging), 1.0, "battery")
	return nil
}

// IngestNetwork updates the network type in the tray.
func (e *Engine) IngestNetwork(networkType string) {
	e.Tray.Put("networkType", networkType, 1.0, "network")
}

// #endregion ingest-gps

// #region places

// Snapshot assembles the current context snapshot.
func (e *Engine) Snapshot() tray.ContextSnapshot {
	return e.Tray.Snapshot()
}

// DiscoverPlaces clusters the accumulated GPS history, refreshes the
// geofence set from the results and persists them when a store is
// attached.
func (e *Engine) DiscoverPlaces() ([]cluster.Result, error) {
	e.mu.Lock()
	points := append([]geo.GeoPoint(nil), e.gpsHistory...)
	e.mu.Unlock()

	results := cluster.New(e.config.Cluster).Cluster(points)

	fences := make([]geo.Geofence, 0, len(results))
	for _, c := range results {
		fences = append(fences, geo.Geofence{
			ID:           c.ID,
			Name:         c.SuggestedName,
			Latitude:     c.CenterLat,
			Longitude:    c.CenterLng,
			RadiusMeters: c.RadiusMeters,
			Category:     c.SuggestedCategory,
		})
	}

	e.mu.Lock()
	e.geofences = fences
	e.mu.Unlock()

	e.log.Info("place discovery run",
		zap.Int("points", len(points)),
		zap.Int("clusters", len(results)))

	if e.persist != nil {
		if err := e.persist.SavePlaces(results); err != nil {
			return results, fmt.Errorf("persist places: %w", err)
		}
	}
	return results, nil
}

// Geofences returns the current fence set.
func (e *Engine) Geofences() []geo.Geofence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]geo.Geofence(nil), e.geofences...)
}

// SetGeofences replaces the fence set (user-defined fences).
func (e *Engine) SetGeofences(fences []geo.Geofence) error {
	for _, f := range fences {
		if f.RadiusMeters <= 0 {
			return fmt.Errorf("setGeofences %q: radius must be positive", f.ID)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.geofences = append([]geo.Geofence(nil), fences...)
	return nil
}

// LearnedSignals returns a copy of one fence's signal history.
func (e *Engine) LearnedSignals(geofenceID string) (fusion.LearnedSignals, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.learnedSignals[geofenceID]
	return sig, ok
}

// #endregion places

// #region decide

// EvaluateRules runs the decision tree over the current snapshot.
func (e *Engine) EvaluateRules() []rules.Rule {
	return e.Rules.Evaluate(e.Tray.Snapshot())
}

// ChooseAction evaluates the rules and lets the bandit pick among the
// matched actions. Returns the chosen rule and a decision id to report
// the outcome against; ok is false when no rule matched.
func (e *Engine) ChooseAction() (rules.Rule, string, bool) {
	snap := e.Tray.Snapshot()
	matched := e.Rules.Evaluate(snap)
	if len(matched) == 0 {
		return rules.Rule{}, "", false
	}

	ctx := snap.Fields()
	ids := make([]string, 0, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
	}

	idx := e.Bandit.Select(ids, ctx)
	chosen := matched[idx]

	decisionID := fmt.Sprintf("dec_%d_%s", clock.NowMs(e.clk), chosen.ID)
	if e.persist != nil {
		if id, err := e.persist.LogDecision(chosen.ID, ""); err == nil {
			decisionID = id
		} else {
			e.log.Warn("decision log failed", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.pending[decisionID] = pendingDecision{actionID: chosen.ID, ctx: ctx}
	e.mu.Unlock()

	hour, _ := strconv.Atoi(snap.Hour)
	geofence, _ := snap.Get("geofence")
	wifiSsid, _ := snap.Get("wifiSsid")
	battery, _ := strconv.Atoi(snap.BatteryLevel)
	e.Buffer.RecordRuleMatch(trainsync.RuleMatchData{
		RuleID:       chosen.ID,
		Action:       chosen.Action,
		Confidence:   1.0,
		TimeOfDay:    snap.TimeOfDay,
		Hour:         hour,
		MotionState:  snap.MotionState,
		Geofence:     geofence,
		WifiSsid:     wifiSsid,
		BatteryLevel: battery,
		IsCharging:   snap.IsCharging == "true",
	})

	e.log.Info("action chosen",
		zap.String("rule", chosen.ID),
		zap.Int("candidates", len(matched)))

	return chosen, decisionID, true
}

// RecordOutcome feeds an observed reward back into the bandit for a prior
// decision.
func (e *Engine) RecordOutcome(decisionID string, reward float64) error {
	e.mu.Lock()
	dec, ok := e.pending[decisionID]
	if ok {
		delete(e.pending, decisionID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("recordOutcome: unknown decision %s", decisionID)
	}

	e.Bandit.Update(dec.actionID, reward, dec.ctx)

	if e.persist != nil {
		if err := e.persist.RecordReward(decisionID, reward); err != nil {
			e.log.Warn("reward persist failed", zap.Error(err))
		}
	}
	return nil
}

// #endregion decide

// #region feedback

// rewardForFeedback maps feedback kinds to bandit rewards.
var rewardForFeedback = map[feedback.Type]float64{
	feedback.Useful:     1.0,
	feedback.Inaccurate: 0.0,
	feedback.Dismiss:    0.2,
	feedback.Adjust:     0.5,
}

// feedbackTypeNames are the wire names stored in training records.
var feedbackTypeNames = map[feedback.Type]string{
	feedback.Useful:     "useful",
	feedback.Inaccurate: "inaccurate",
	feedback.Dismiss:    "dismiss",
	feedback.Adjust:     "adjust",
}

// RecordFeedback routes a user response into the feedback learner, the
// bandit and the training buffer.
func (e *Engine) RecordFeedback(ruleID string, typ feedback.Type, adj *feedback.Adjustment) error {
	snap := e.Tray.Snapshot()
	hour, _ := strconv.Atoi(snap.Hour)
	geofence, _ := snap.Get("geofence")
	wifiSsid, _ := snap.Get("wifiSsid")

	fctx := feedback.Context{
		RuleID:      ruleID,
		Hour:        hour,
		TimeOfDay:   snap.TimeOfDay,
		IsWeekend:   snap.IsWeekend == "true",
		Geofence:    geofence,
		WifiSsid:    wifiSsid,
		MotionState: snap.MotionState,
	}

	var err error
	ufd := trainsync.UserFeedbackData{
		RuleID:       ruleID,
		FeedbackType: feedbackTypeNames[typ],
		TimeOfDay:    snap.TimeOfDay,
		Hour:         hour,
		MotionState:  snap.MotionState,
		Geofence:     geofence,
	}

	if typ == feedback.Adjust {
		if adj == nil {
			return fmt.Errorf("recordFeedback %q: adjust requires an adjustment", ruleID)
		}
		err = e.Feedback.RecordAdjustment(ruleID, fctx, *adj)
		ufd.OriginalValue = strconv.FormatFloat(adj.OriginalValue, 'f', -1, 64)
		ufd.AdjustedValue = strconv.FormatFloat(adj.AdjustedValue, 'f', -1, 64)
	} else {
		err = e.Feedback.RecordSimple(ruleID, typ, fctx)
	}
	if err != nil {
		return err
	}

	e.Buffer.RecordFeedback(ufd)
	e.Bandit.Update(ruleID, rewardForFeedback[typ], snap.Fields())
	return nil
}

// #endregion feedback

// #region persistence

// SaveState snapshots the training buffer and learned signals into the
// store. A no-op without a store.
func (e *Engine) SaveState() error {
	if e.persist == nil {
		return nil
	}

	snapshot, err := e.Buffer.Serialize()
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := e.persist.SaveBufferSnapshot(snapshot); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	e.mu.Lock()
	signals := make(map[string]fusion.LearnedSignals, len(e.learnedSignals))
	for id, sig := range e.learnedSignals {
		signals[id] = sig
	}
	e.mu.Unlock()

	for id, sig := range signals {
		if err := e.persist.SaveSignals(id, sig); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	return nil
}

// LoadState restores places (as geofences), learned signals and the
// latest buffer snapshot from the store. A no-op without a store.
func (e *Engine) LoadState() error {
	if e.persist == nil {
		return nil
	}

	places, err := e.persist.LoadPlaces()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	fences := make([]geo.Geofence, 0, len(places))
	for _, p := range places {
		fences = append(fences, geo.Geofence{
			ID:           p.ID,
			Name:         p.SuggestedName,
			Latitude:     p.CenterLat,
			Longitude:    p.CenterLng,
			RadiusMeters: p.RadiusMeters,
			Category:     p.SuggestedCategory,
		})
	}

	signals, err := e.persist.LoadSignals()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	e.mu.Lock()
	e.geofences = fences
	e.learnedSignals = signals
	e.mu.Unlock()

	snapshot, ok, err := e.persist.LoadLatestBufferSnapshot()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if ok {
		if err := e.Buffer.Deserialize(snapshot); err != nil {
			e.log.Warn("buffer snapshot rejected", zap.Error(err))
		}
	}
	return nil
}

// #endregion persistence
