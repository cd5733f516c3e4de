// Package fusion combines GPS distance, learned WiFi SSIDs and Bluetooth
// devices into a calibrated in-place confidence per geofence.
package fusion

import "math"

// #region types

// LearnedSignals is the per-geofence observation history used to score
// WiFi and Bluetooth evidence.
type LearnedSignals struct {
	WifiSsids         map[string]int
	BtDevices         map[string]int
	TotalObservations int
}

// Result is the fused confidence for one geofence.
type Result struct {
	GeofenceID     string
	Confidence     float64
	GpsConfidence  float64
	WifiConfidence float64
	BtConfidence   float64
	Source         string // "gps" | "wifi" | "bt"
}

// Config holds the fusion constants.
type Config struct {
	GpsHighConfidenceRadius float64
	GpsDecayScale           float64
	GpsMinConfidence        float64
	WifiMatchConfidence     float64
	WifiNoMatchConfidence   float64
	BtMatchConfidence       float64
	// LearningMinObservations is the observation floor below which
	// learned signals contribute nothing.
	LearningMinObservations int
	// LearningGpsAccuracyThreshold gates signal learning: only GPS fixes
	// at least this accurate may teach the signal maps.
	LearningGpsAccuracyThreshold float64
}

// DefaultConfig returns the calibrated fusion constants.
func DefaultConfig() Config {
	return Config{
		GpsHighConfidenceRadius:      50.0,
		GpsDecayScale:                200.0,
		GpsMinConfidence:             0.05,
		WifiMatchConfidence:          0.95,
		WifiNoMatchConfidence:        0.1,
		BtMatchConfidence:            0.8,
		LearningMinObservations:      3,
		LearningGpsAccuracyThreshold: 30.0,
	}
}

// #endregion types

// #region fusion

// Fusion scores geofence membership from multiple signal sources.
type Fusion struct {
	config Config
}

// New creates a Fusion with the given constants.
func New(config Config) *Fusion {
	return &Fusion{config: config}
}

// Config returns the active constants.
func (f *Fusion) Config() Config { return f.config }

// CalculateConfidence fuses one geofence's evidence. The overall
// confidence is the max of the per-source confidences; when GPS is
// low-quality (accuracy > 100 m) a strong non-GPS source gets a small
// boost. Source ties break wifi over bt over gps.
func (f *Fusion) CalculateConfidence(geofenceID string, distance, gpsAccuracy float64,
	wifiSsid string, btDevices []string, signals LearnedSignals) Result {

	result := Result{GeofenceID: geofenceID}

	result.GpsConfidence = f.gpsConfidence(distance)
	result.WifiConfidence = f.wifiConfidence(wifiSsid, signals)
	result.BtConfidence = f.btConfidence(btDevices, signals)

	result.Confidence = math.Max(result.GpsConfidence, math.Max(result.WifiConfidence, result.BtConfidence))

	gpsLowQuality := gpsAccuracy > 100
	if gpsLowQuality && (result.WifiConfidence > 0.5 || result.BtConfidence > 0.5) {
		nonGpsMax := math.Max(result.WifiConfidence, result.BtConfidence)
		result.Confidence = math.Max(result.Confidence, math.Min(nonGpsMax+0.05, 1.0))
	}

	switch {
	case result.WifiConfidence >= result.GpsConfidence && result.WifiConfidence >= result.BtConfidence:
		result.Source = "wifi"
	case result.BtConfidence >= result.GpsConfidence && result.BtConfidence >= result.WifiConfidence:
		result.Source = "bt"
	default:
		result.Source = "gps"
	}

	return result
}

// GeofenceDistance pairs a geofence id with the GPS distance to its
// center.
type GeofenceDistance struct {
	GeofenceID string
	Distance   float64
}

// CalculateAllConfidences scores every geofence; fences without learned
// signals score against the zero value.
func (f *Fusion) CalculateAllConfidences(distances []GeofenceDistance, gpsAccuracy float64,
	wifiSsid string, btDevices []string, allSignals map[string]LearnedSignals) []Result {

	results := make([]Result, 0, len(distances))
	for _, gd := range distances {
		signals := allSignals[gd.GeofenceID]
		results = append(results, f.CalculateConfidence(gd.GeofenceID, gd.Distance, gpsAccuracy, wifiSsid, btDevices, signals))
	}
	return results
}

// #endregion fusion

// #region per-source

func (f *Fusion) gpsConfidence(distance float64) float64 {
	if distance < f.config.GpsHighConfidenceRadius {
		return 1.0
	}
	if distance < f.config.GpsDecayScale*3 {
		return math.Max(math.Exp(-distance/f.config.GpsDecayScale), f.config.GpsMinConfidence)
	}
	return f.config.GpsMinConfidence
}

func (f *Fusion) wifiConfidence(currentSsid string, signals LearnedSignals) float64 {
	if currentSsid == "" {
		return 0
	}
	if signals.TotalObservations < f.config.LearningMinObservations {
		return 0
	}
	if count, ok := signals.WifiSsids[currentSsid]; ok && count >= f.config.LearningMinObservations {
		return f.config.WifiMatchConfidence
	}
	// Learned SSIDs exist but the current one does not match.
	if len(signals.WifiSsids) > 0 {
		return f.config.WifiNoMatchConfidence
	}
	return 0
}

func (f *Fusion) btConfidence(currentDevices []string, signals LearnedSignals) float64 {
	if len(currentDevices) == 0 {
		return 0
	}
	if signals.TotalObservations < f.config.LearningMinObservations {
		return 0
	}
	for _, device := range currentDevices {
		if count, ok := signals.BtDevices[device]; ok && count >= f.config.LearningMinObservations {
			return f.config.BtMatchConfidence
		}
	}
	return 0
}

// #endregion per-source

// #region learning

// LearnSignal records the current WiFi/BT environment into the signal
// maps. Callers invoke it only while GPS-confirmed inside the geofence
// with accuracy within LearningGpsAccuracyThreshold.
func LearnSignal(signals *LearnedSignals, wifiSsid string, btDevices []string) {
	if signals.WifiSsids == nil {
		signals.WifiSsids = make(map[string]int)
	}
	if signals.BtDevices == nil {
		signals.BtDevices = make(map[string]int)
	}

	if wifiSsid != "" {
		signals.WifiSsids[wifiSsid]++
	}
	for _, device := range btDevices {
		if device != "" {
			signals.BtDevices[device]++
		}
	}
	signals.TotalObservations++
}

// #endregion learning
