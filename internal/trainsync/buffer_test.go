package trainsync

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

func testBuffer() *Buffer {
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	b := NewBuffer(clock.Func(func() time.Time { return t0 }))
	b.Init("device-1")
	return b
}

func ids(b *Buffer) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.ID)
	}
	return out
}

func TestRecordPrefixes(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{RuleID: "r1"})
	b.RecordFeedback(UserFeedbackData{RuleID: "r1"})
	b.RecordStateTransition(StateTransitionData{PrevState: "stationary", NewState: "walking"})
	b.RecordGeofenceFeature(GeofenceFeatureData{GeofenceID: "home"})

	got := ids(b)
	for i, prefix := range []string{"rm_", "fb_", "st_", "gf_"} {
		if !strings.HasPrefix(got[i], prefix) {
			t.Fatalf("record %d id %q lacks prefix %q", i, got[i], prefix)
		}
	}
}

func TestBoundDropsSyncedFirst(t *testing.T) {
	// Scenario: max 3, r1..r4 pending → {r2,r3,r4}; mark r3 synced,
	// record r5 → {r2,r4,r5}.
	b := testBuffer()
	if err := b.SetMaxRecords(3); err != nil {
		t.Fatalf("setMaxRecords: %v", err)
	}

	for i := 0; i < 4; i++ {
		b.RecordRuleMatch(RuleMatchData{RuleID: "r"})
	}
	got := ids(b)
	if len(got) != 3 {
		t.Fatalf("size = %d, want 3", len(got))
	}
	r2, r4 := got[0], got[2]

	b.MarkAsSynced([]string{got[1]}) // r3
	b.RecordRuleMatch(RuleMatchData{RuleID: "r"})

	got = ids(b)
	if len(got) != 3 {
		t.Fatalf("size after r5 = %d", len(got))
	}
	if got[0] != r2 || got[1] != r4 {
		t.Fatalf("synced record should be pruned first: %v", got)
	}
}

func TestBoundDropsOldestWhenNoneSynced(t *testing.T) {
	b := testBuffer()
	b.SetMaxRecords(2)
	b.RecordRuleMatch(RuleMatchData{})
	first := ids(b)[0]
	b.RecordRuleMatch(RuleMatchData{})
	b.RecordRuleMatch(RuleMatchData{})

	got := ids(b)
	if len(got) != 2 {
		t.Fatalf("size = %d", len(got))
	}
	for _, id := range got {
		if id == first {
			t.Fatal("oldest record should have been dropped")
		}
	}
}

func TestSetMaxRecordsRejectsNonPositive(t *testing.T) {
	b := testBuffer()
	if err := b.SetMaxRecords(0); err == nil {
		t.Fatal("zero bound should be rejected")
	}
}

func TestExportPendingExcludesSynced(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{RuleID: "r1", Hour: 22, IsCharging: true, Confidence: 0.9})
	b.RecordFeedback(UserFeedbackData{RuleID: "r1", FeedbackType: "useful"})

	recIDs := ids(b)
	b.MarkAsSynced([]string{recIDs[0]})

	out, err := b.ExportPendingAsJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var parsed struct {
		DeviceID  string `json:"deviceId"`
		Timestamp int64  `json:"timestamp"`
		Records   []struct {
			ID        string         `json:"id"`
			Type      string         `json:"type"`
			Timestamp int64          `json:"timestamp"`
			Data      map[string]any `json:"data"`
		} `json:"records"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("export not valid json: %v", err)
	}

	if parsed.DeviceID != "device-1" {
		t.Fatalf("deviceId = %q", parsed.DeviceID)
	}
	if len(parsed.Records) != 1 {
		t.Fatalf("pending records = %d, want 1", len(parsed.Records))
	}
	if parsed.Records[0].ID == recIDs[0] {
		t.Fatal("synced record leaked into export")
	}
	if parsed.Records[0].Type != "user_feedback" {
		t.Fatalf("type = %q", parsed.Records[0].Type)
	}
	if parsed.Records[0].Data["ruleId"] != "r1" {
		t.Fatalf("flattened data: %v", parsed.Records[0].Data)
	}
}

func TestExportTypeNames(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{})
	b.RecordStateTransition(StateTransitionData{})
	b.RecordGeofenceFeature(GeofenceFeatureData{})

	out, _ := b.ExportPendingAsJSON()
	for _, name := range []string{"rule_match", "state_transition", "geofence_feature"} {
		if !strings.Contains(out, `"`+name+`"`) {
			t.Fatalf("export missing type %q: %s", name, out)
		}
	}
}

func TestCleanupSynced(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{})
	b.RecordRuleMatch(RuleMatchData{})
	recIDs := ids(b)
	b.MarkAsSynced([]string{recIDs[0]})

	b.CleanupSynced()

	stats := b.Stats()
	if stats.TotalRecords != 1 || stats.SyncedCount != 0 || stats.PendingCount != 1 {
		t.Fatalf("stats after cleanup: %+v", stats)
	}
}

func TestMarkAsSyncedUpdatesLastSync(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{})
	if b.Stats().LastSyncTime != 0 {
		t.Fatal("lastSync should start at 0")
	}
	b.MarkAsSynced(ids(b))
	if b.Stats().LastSyncTime == 0 {
		t.Fatal("markAsSynced should stamp lastSync")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	b := testBuffer()
	b.SetMaxRecords(50)
	b.RecordRuleMatch(RuleMatchData{RuleID: "r1", Hour: 22})
	b.RecordFeedback(UserFeedbackData{RuleID: "r2"})
	b.MarkAsSynced([]string{ids(b)[0]})

	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	restored := testBuffer()
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if restored.DeviceID() != "device-1" {
		t.Fatalf("deviceId = %q", restored.DeviceID())
	}
	stats := restored.Stats()
	if stats.TotalRecords != 2 || stats.SyncedCount != 1 || stats.PendingCount != 1 {
		t.Fatalf("restored stats: %+v", stats)
	}
	if stats.LastSyncTime == 0 {
		t.Fatal("lastSync not restored")
	}

	restored.mu.Lock()
	maxRecords := restored.maxRecords
	rec := restored.records[0]
	restored.mu.Unlock()
	if maxRecords != 50 {
		t.Fatalf("maxRecords = %d", maxRecords)
	}
	if rec.Type != RuleMatch || rec.NumericData["hour"] != 22 {
		t.Fatalf("restored record: %+v", rec)
	}
}

func TestDeserializeTolerant(t *testing.T) {
	b := testBuffer()

	// Unknown keys, missing records: success.
	if err := b.Deserialize(`{"deviceId":"d2","surprise":[1,2,3]}`); err != nil {
		t.Fatalf("tolerant deserialize: %v", err)
	}
	if b.DeviceID() != "d2" {
		t.Fatalf("deviceId = %q", b.DeviceID())
	}

	// Broken top level: error, state untouched.
	if err := b.Deserialize(`{"records":[`); err == nil {
		t.Fatal("expected error for malformed json")
	}
	if b.DeviceID() != "d2" {
		t.Fatal("failed deserialize must not mutate state")
	}
}

func TestJSONStringEscaping(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{RuleID: "quote\"back\\slash\nnewline"})

	out, err := b.ExportPendingAsJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("escaped export must re-parse: %v", err)
	}

	data, _ := b.Serialize()
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		t.Fatalf("escaped serialize must re-parse: %v", err)
	}
}

func TestClearKeepsDeviceID(t *testing.T) {
	b := testBuffer()
	b.RecordRuleMatch(RuleMatchData{})
	b.MarkAsSynced(ids(b))
	b.Clear()

	stats := b.Stats()
	if stats.TotalRecords != 0 || stats.LastSyncTime != 0 {
		t.Fatalf("stats after clear: %+v", stats)
	}
	if b.DeviceID() != "device-1" {
		t.Fatal("clear should keep the device id")
	}
}
