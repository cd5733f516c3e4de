package tray

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/context-core/internal/clock"
)

// fakeClock is a settable wall clock for pinning entry ages.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestTray() (*Tray, *fakeClock) {
	fc := &fakeClock{now: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)} // a Monday
	return New(fc), fc
}

func TestPutGetRoundTrip(t *testing.T) {
	tr, _ := newTestTray()
	if err := tr.Put("wifiSsid", "HomeNet", 1.0, "wifi"); err != nil {
		t.Fatalf("put: %v", err)
	}

	r := tr.Get("wifiSsid")
	if !r.Exists {
		t.Fatal("expected entry")
	}
	if r.Value != "HomeNet" {
		t.Fatalf("value = %q", r.Value)
	}
	if !r.Fresh || r.Quality != 1.0 || r.AgeMs != 0 {
		t.Fatalf("fresh=%v quality=%f age=%d", r.Fresh, r.Quality, r.AgeMs)
	}
}

func TestGetMissingKey(t *testing.T) {
	tr, _ := newTestTray()
	if r := tr.Get("nope"); r.Exists {
		t.Fatal("missing key should not exist")
	}
}

func TestPutRejectsBadQuality(t *testing.T) {
	tr, _ := newTestTray()
	if err := tr.Put("k", "v", 1.5, ""); err == nil {
		t.Fatal("expected error for quality > 1")
	}
	if err := tr.Put("k", "v", -0.1, ""); err == nil {
		t.Fatal("expected error for negative quality")
	}
	if tr.Size() != 0 {
		t.Fatal("failed put must not mutate state")
	}
}

func TestTTLDecayScenario(t *testing.T) {
	// ttl 1000ms: read at 200ms → quality 0.8 fresh, at
	// 1200ms → quality 0 stale, value retained.
	tr, fc := newTestTray()
	if err := tr.SetTTL("motionState", 1000); err != nil {
		t.Fatalf("setTTL: %v", err)
	}
	if err := tr.Put("motionState", "walking", 1.0, "sensor"); err != nil {
		t.Fatalf("put: %v", err)
	}

	fc.advance(200 * time.Millisecond)
	r := tr.Get("motionState")
	if r.Value != "walking" || !r.Fresh || r.AgeMs != 200 {
		t.Fatalf("at 200ms: %+v", r)
	}
	if r.Quality < 0.79 || r.Quality > 0.81 {
		t.Fatalf("quality at 200ms = %f, want ~0.8", r.Quality)
	}

	fc.advance(1000 * time.Millisecond)
	r = tr.Get("motionState")
	if r.Value != "walking" || r.Fresh || r.AgeMs != 1200 {
		t.Fatalf("at 1200ms: %+v", r)
	}
	if r.Quality != 0 {
		t.Fatalf("stale quality = %f, want 0", r.Quality)
	}
}

func TestQualityScalesWithBase(t *testing.T) {
	tr, fc := newTestTray()
	tr.SetTTL("k", 1000)
	tr.Put("k", "v", 0.5, "")
	fc.advance(500 * time.Millisecond)

	r := tr.Get("k")
	if r.Quality < 0.24 || r.Quality > 0.26 {
		t.Fatalf("quality = %f, want ~0.25", r.Quality)
	}
}

func TestOverwriteResetsAge(t *testing.T) {
	tr, fc := newTestTray()
	tr.SetTTL("k", 1000)
	tr.Put("k", "old", 1.0, "")
	fc.advance(900 * time.Millisecond)
	tr.Put("k", "new", 1.0, "")

	r := tr.Get("k")
	if r.Value != "new" || r.AgeMs != 0 || !r.Fresh {
		t.Fatalf("after overwrite: %+v", r)
	}
}

func TestSnapshotDefaults(t *testing.T) {
	tr, _ := newTestTray()
	snap := tr.Snapshot()

	// Clock pinned to Monday 10:00.
	if snap.Hour != "10" {
		t.Fatalf("hour = %q", snap.Hour)
	}
	if snap.TimeOfDay != "morning" {
		t.Fatalf("timeOfDay = %q", snap.TimeOfDay)
	}
	if snap.IsWeekend != "false" {
		t.Fatalf("isWeekend = %q", snap.IsWeekend)
	}
	if snap.MotionState != "unknown" || snap.BatteryLevel != "100" {
		t.Fatalf("defaults: motion=%q battery=%q", snap.MotionState, snap.BatteryLevel)
	}
	if len(snap.Optional) != 0 {
		t.Fatalf("no optional fields expected, got %v", snap.Optional)
	}
}

func TestSnapshotUsesLastKnownRequired(t *testing.T) {
	tr, fc := newTestTray()
	tr.SetTTL("motionState", 1000)
	tr.Put("motionState", "walking", 1.0, "sensor")
	fc.advance(5 * time.Second) // well past TTL

	snap := tr.Snapshot()
	if snap.MotionState != "walking" {
		t.Fatalf("required field should keep last-known value, got %q", snap.MotionState)
	}
}

func TestSnapshotOptionalOnlyWhenFresh(t *testing.T) {
	tr, fc := newTestTray()
	tr.SetTTL("geofence", 1000)
	tr.Put("geofence", "home", 1.0, "fusion")

	snap := tr.Snapshot()
	if v, ok := snap.Get("geofence"); !ok || v != "home" {
		t.Fatalf("fresh optional missing: %v %v", v, ok)
	}

	fc.advance(2 * time.Second)
	snap = tr.Snapshot()
	if _, ok := snap.Get("geofence"); ok {
		t.Fatal("stale optional should be absent")
	}
}

func TestStatusRows(t *testing.T) {
	tr, fc := newTestTray()
	tr.SetTTL("a", 1000)
	tr.Put("b", "2", 1.0, "s2")
	tr.Put("a", "1", 0.5, "s1")
	fc.advance(500 * time.Millisecond)

	rows := tr.Status()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Key != "a" || rows[1].Key != "b" {
		t.Fatal("rows should be sorted by key")
	}
	if rows[0].TTLMs != 1000 || rows[0].Source != "s1" || rows[0].AgeMs != 500 {
		t.Fatalf("row a: %+v", rows[0])
	}
	if rows[0].EffectiveQuality < 0.24 || rows[0].EffectiveQuality > 0.26 {
		t.Fatalf("row a quality = %f", rows[0].EffectiveQuality)
	}
}

func TestClearAndSize(t *testing.T) {
	tr, _ := newTestTray()
	tr.Put("a", "1", 1.0, "")
	tr.Put("b", "2", 1.0, "")
	if tr.Size() != 2 {
		t.Fatalf("size = %d", tr.Size())
	}
	tr.Clear()
	if tr.Size() != 0 {
		t.Fatal("clear should empty the tray")
	}
}

var _ clock.Clock = (*fakeClock)(nil)
