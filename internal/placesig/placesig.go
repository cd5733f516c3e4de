// Package placesig associates places with the WiFi networks, Bluetooth
// devices and cell ids observed while visiting them.
package placesig

import (
	"sort"
	"sync"
)

// #region types

// placeSignals is the signal sets and visit counter for one place.
type placeSignals struct {
	wifiSsids map[string]int
	btDevices map[string]int
	cellIds   map[string]int
	visits    int
}

// Summary is the per-place signal inventory.
type Summary struct {
	WifiList   []string
	BtList     []string
	CellList   []string
	VisitCount int
}

// #endregion types

// #region learner

// Learner maintains per-place signal sets. All methods are safe for
// concurrent use.
type Learner struct {
	mu     sync.Mutex
	places map[string]*placeSignals
}

// NewLearner creates an empty learner.
func NewLearner() *Learner {
	return &Learner{places: make(map[string]*placeSignals)}
}

// Learn records the signals observed at a place. Returns false, without
// learning, when placeId is empty or no signal was supplied.
func (l *Learner) Learn(placeID, wifiSsid, btDevice, cellID string) bool {
	if placeID == "" {
		return false
	}
	if wifiSsid == "" && btDevice == "" && cellID == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.places[placeID]
	if !ok {
		p = &placeSignals{
			wifiSsids: make(map[string]int),
			btDevices: make(map[string]int),
			cellIds:   make(map[string]int),
		}
		l.places[placeID] = p
	}

	if wifiSsid != "" {
		p.wifiSsids[wifiSsid]++
	}
	if btDevice != "" {
		p.btDevices[btDevice]++
	}
	if cellID != "" {
		p.cellIds[cellID]++
	}
	p.visits++
	return true
}

// #endregion learner

// #region queries

// MatchesWifi reports whether the place has ever observed the SSID.
func (l *Learner) MatchesWifi(placeID, wifiSsid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.places[placeID]
	if !ok {
		return false
	}
	return p.wifiSsids[wifiSsid] > 0
}

// MatchesCellID reports whether the place has ever observed the cell id.
func (l *Learner) MatchesCellID(placeID, cellID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.places[placeID]
	if !ok {
		return false
	}
	return p.cellIds[cellID] > 0
}

// FindPlacesByWifi returns all place ids that observed the SSID, sorted.
func (l *Learner) FindPlacesByWifi(wifiSsid string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for id, p := range l.places {
		if p.wifiSsids[wifiSsid] > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// FindPlacesByCellID returns all place ids that observed the cell id,
// sorted.
func (l *Learner) FindPlacesByCellID(cellID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for id, p := range l.places {
		if p.cellIds[cellID] > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Summary returns the signal inventory for a place. Unknown places yield
// an empty summary.
func (l *Learner) Summary(placeID string) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.places[placeID]
	if !ok {
		return Summary{}
	}
	return Summary{
		WifiList:   sortedKeys(p.wifiSsids),
		BtList:     sortedKeys(p.btDevices),
		CellList:   sortedKeys(p.cellIds),
		VisitCount: p.visits,
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clear forgets one place.
func (l *Learner) Clear(placeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.places, placeID)
}

// ClearAll forgets every place.
func (l *Learner) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.places = make(map[string]*placeSignals)
}

// #endregion queries
