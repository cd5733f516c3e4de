package trainsync

// #region record-type

// RecordType identifies a training record kind. The integer codes are the
// persisted contract.
type RecordType int

const (
	RuleMatch       RecordType = 0
	UserFeedback    RecordType = 1
	StateTransition RecordType = 2
	GeofenceFeature RecordType = 3
)

// wireNames are the snake_case names used in the pending export.
var wireNames = map[RecordType]string{
	RuleMatch:       "rule_match",
	UserFeedback:    "user_feedback",
	StateTransition: "state_transition",
	GeofenceFeature: "geofence_feature",
}

// #endregion record-type

// #region record

// Record is one buffered training sample with typed field maps.
type Record struct {
	ID          string             `json:"id"`
	Type        RecordType         `json:"type"`
	Timestamp   int64              `json:"timestamp"`
	Synced      bool               `json:"synced"`
	StringData  map[string]string  `json:"stringData"`
	NumericData map[string]float64 `json:"numericData"`
	BoolData    map[string]bool    `json:"boolData"`
}

// #endregion record

// #region payloads

// RuleMatchData is the payload for a rule-match record.
type RuleMatchData struct {
	RuleID            string
	Action            string
	Confidence        float64
	TimeOfDay         string
	Hour              int
	MotionState       string
	PrevMotionState   string
	PrevActivityState string
	ActivityDuration  int64
	Geofence          string
	WifiSsid          string
	BatteryLevel      int
	IsCharging        bool
}

// UserFeedbackData is the payload for a feedback record.
type UserFeedbackData struct {
	RuleID            string
	FeedbackType      string
	OriginalValue     string
	AdjustedValue     string
	TimeOfDay         string
	Hour              int
	MotionState       string
	PrevActivityState string
	ActivityDuration  int64
	Geofence          string
}

// StateTransitionData is the payload for a motion transition record.
type StateTransitionData struct {
	PrevState string
	NewState  string
	Duration  int64
	TimeOfDay string
	Hour      int
	Geofence  string
	WifiSsid  string
}

// GeofenceFeatureData is the payload for a geofence dwell record.
type GeofenceFeatureData struct {
	GeofenceID   string
	GeofenceName string
	WifiSsid     string
	TimeOfDay    string
	Hour         int
	Duration     int64
}

// #endregion payloads

// #region stats

// Stats summarizes the buffer.
type Stats struct {
	PendingCount int
	SyncedCount  int
	LastSyncTime int64
	TotalRecords int64
}

// #endregion stats
