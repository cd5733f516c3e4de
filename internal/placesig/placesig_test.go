package placesig

import "testing"

func TestLearnRequiresPlaceAndSignal(t *testing.T) {
	l := NewLearner()

	if l.Learn("", "HomeNet", "", "") {
		t.Fatal("empty place id should not learn")
	}
	if l.Learn("home", "", "", "") {
		t.Fatal("no signal should not learn")
	}
	if !l.Learn("home", "HomeNet", "", "") {
		t.Fatal("valid learn should succeed")
	}
}

func TestMatchesWifi(t *testing.T) {
	l := NewLearner()
	l.Learn("home", "HomeNet", "", "")

	if !l.MatchesWifi("home", "HomeNet") {
		t.Fatal("observed ssid should match")
	}
	if l.MatchesWifi("home", "Other") {
		t.Fatal("unobserved ssid should not match")
	}
	if l.MatchesWifi("work", "HomeNet") {
		t.Fatal("unknown place should not match")
	}
}

func TestMatchesCellID(t *testing.T) {
	l := NewLearner()
	l.Learn("home", "", "", "cell-42")

	if !l.MatchesCellID("home", "cell-42") {
		t.Fatal("observed cell should match")
	}
	if l.MatchesCellID("home", "cell-1") {
		t.Fatal("unobserved cell should not match")
	}
}

func TestFindPlaces(t *testing.T) {
	l := NewLearner()
	l.Learn("home", "SharedNet", "", "")
	l.Learn("office", "SharedNet", "", "")
	l.Learn("gym", "GymNet", "", "cell-9")

	places := l.FindPlacesByWifi("SharedNet")
	if len(places) != 2 || places[0] != "home" || places[1] != "office" {
		t.Fatalf("findPlacesByWifi = %v", places)
	}
	if places := l.FindPlacesByCellID("cell-9"); len(places) != 1 || places[0] != "gym" {
		t.Fatalf("findPlacesByCellID = %v", places)
	}
	if places := l.FindPlacesByWifi("nope"); len(places) != 0 {
		t.Fatalf("unknown ssid = %v", places)
	}
}

func TestSummary(t *testing.T) {
	l := NewLearner()
	l.Learn("home", "HomeNet", "earbuds", "")
	l.Learn("home", "HomeNet", "speaker", "cell-1")
	l.Learn("home", "GuestNet", "", "")

	s := l.Summary("home")
	if s.VisitCount != 3 {
		t.Fatalf("visits = %d", s.VisitCount)
	}
	if len(s.WifiList) != 2 || s.WifiList[0] != "GuestNet" {
		t.Fatalf("wifiList = %v", s.WifiList)
	}
	if len(s.BtList) != 2 {
		t.Fatalf("btList = %v", s.BtList)
	}
	if len(s.CellList) != 1 || s.CellList[0] != "cell-1" {
		t.Fatalf("cellList = %v", s.CellList)
	}

	if empty := l.Summary("nowhere"); empty.VisitCount != 0 || len(empty.WifiList) != 0 {
		t.Fatalf("unknown place summary: %+v", empty)
	}
}

func TestClear(t *testing.T) {
	l := NewLearner()
	l.Learn("home", "HomeNet", "", "")
	l.Learn("work", "WorkNet", "", "")

	l.Clear("home")
	if l.MatchesWifi("home", "HomeNet") {
		t.Fatal("cleared place still matching")
	}
	if !l.MatchesWifi("work", "WorkNet") {
		t.Fatal("clear removed the wrong place")
	}

	l.ClearAll()
	if l.MatchesWifi("work", "WorkNet") {
		t.Fatal("clearAll left state behind")
	}
}
