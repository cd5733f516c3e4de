package motion

// #region state

// State is a motion classification.
type State int

const (
	Stationary State = iota
	Walking
	Running
	Driving
	Transit
	Unknown
)

// stateNames are the lowercase wire names.
var stateNames = map[State]string{
	Stationary: "stationary",
	Walking:    "walking",
	Running:    "running",
	Driving:    "driving",
	Transit:    "transit",
	Unknown:    "unknown",
}

// StateToString returns the lowercase wire name for a state.
func StateToString(s State) string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// StringToState parses a wire name. Unrecognized names map to Unknown.
func StringToState(name string) State {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return Unknown
}

// #endregion state

// #region samples

// AccelSample is one accelerometer reading in m/s² with an epoch-ms stamp.
type AccelSample struct {
	X, Y, Z   float64
	Timestamp int64
}

// Result is the outcome of one detect call. StateChanged is true only on a
// confirmed transition (after hysteresis).
type Result struct {
	State        State
	Magnitude    float64
	GPSSpeed     float64
	Confidence   float64
	StateChanged bool
}

// #endregion samples

// #region config

// DetectorConfig holds the classification thresholds. The defaults are
// the pinned contract; tests depend on them.
type DetectorConfig struct {
	// StationaryMagnitude is the gravity-removed accel ceiling (m/s²) for
	// a stationary classification.
	StationaryMagnitude float64
	// StationarySpeed is the GPS-speed ceiling (m/s) for stationary.
	StationarySpeed float64
	// WalkingSpeed / RunningSpeed / TransitSpeed bound the speed bands:
	// walking < WalkingSpeed ≤ running < RunningSpeed ≤ transit <
	// TransitSpeed ≤ driving.
	WalkingSpeed float64
	RunningSpeed float64
	TransitSpeed float64
	// RunningMagnitude is the accel floor above which motion without a
	// speed fix reads as running rather than walking.
	RunningMagnitude float64
	// HysteresisN is how many consecutive identical classifications are
	// needed before the reported state changes.
	HysteresisN int
}

// DefaultDetectorConfig returns the pinned default thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		StationaryMagnitude: 0.5,
		StationarySpeed:     0.3,
		WalkingSpeed:        2.5,
		RunningSpeed:        5.0,
		TransitSpeed:        10.0,
		RunningMagnitude:    3.0,
		HysteresisN:         3,
	}
}

// #endregion config
