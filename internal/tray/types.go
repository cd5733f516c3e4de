package tray

// #region entry

// entry is one stored key/value with its quality stamp.
type entry struct {
	value       string
	baseQuality float64
	source      string
	insertMs    int64
}

// #endregion entry

// #region read-result

// ReadResult is the outcome of a single-key read. Value is only meaningful
// when Exists is true. Quality is the effective (decayed) quality.
type ReadResult struct {
	Value   string
	Exists  bool
	Quality float64
	Fresh   bool
	AgeMs   int64
}

// Status is a diagnostic row for one tray entry.
type Status struct {
	Key              string
	Value            string
	AgeMs            int64
	TTLMs            int64
	Fresh            bool
	EffectiveQuality float64
	Source           string
}

// #endregion read-result

// #region snapshot

// ContextSnapshot is a point-in-time projection of the tray. Required
// fields are always populated (last-known value or default); optional
// fields are present iff a fresh entry exists.
type ContextSnapshot struct {
	TimeOfDay    string
	Hour         string
	DayOfWeek    string
	IsWeekend    string
	MotionState  string
	BatteryLevel string
	IsCharging   string
	NetworkType  string

	// Optional fields, keyed by tray key.
	Optional map[string]string
}

// Get looks up a snapshot field by its tray key. Required fields resolve
// from the struct; anything else from the optional set.
func (s ContextSnapshot) Get(key string) (string, bool) {
	switch key {
	case "timeOfDay":
		return s.TimeOfDay, true
	case "hour":
		return s.Hour, true
	case "dayOfWeek":
		return s.DayOfWeek, true
	case "isWeekend":
		return s.IsWeekend, true
	case "motionState":
		return s.MotionState, true
	case "batteryLevel":
		return s.BatteryLevel, true
	case "isCharging":
		return s.IsCharging, true
	case "networkType":
		return s.NetworkType, true
	}
	v, ok := s.Optional[key]
	return v, ok
}

// Fields flattens the snapshot into a key→value map for consumers that
// want the whole context at once (the bandit feature builder).
func (s ContextSnapshot) Fields() map[string]string {
	m := map[string]string{
		"timeOfDay":    s.TimeOfDay,
		"hour":         s.Hour,
		"dayOfWeek":    s.DayOfWeek,
		"isWeekend":    s.IsWeekend,
		"motionState":  s.MotionState,
		"batteryLevel": s.BatteryLevel,
		"isCharging":   s.IsCharging,
		"networkType":  s.NetworkType,
	}
	for k, v := range s.Optional {
		m[k] = v
	}
	return m
}

// #endregion snapshot
