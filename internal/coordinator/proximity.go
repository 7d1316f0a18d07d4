package coordinator

import "sync"

// proximityTracker remembers the last RSSI reading seen per address so the
// auto-connect policy can suppress duplicate readings. Cleared when
// auto-connect stops and per-address when a peripheral connects.
type proximityTracker struct {
	mu       sync.Mutex
	lastRSSI map[string]int
}

func newProximityTracker() *proximityTracker {
	return &proximityTracker{lastRSSI: make(map[string]int)}
}

// record stores the reading and reports whether it differs from the
// previous one for that address.
func (t *proximityTracker) record(address string, rssi int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.lastRSSI[address]; ok && prev == rssi {
		return false
	}
	t.lastRSSI[address] = rssi
	return true
}

// last returns the stored reading for an address.
func (t *proximityTracker) last(address string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rssi, ok := t.lastRSSI[address]
	return rssi, ok
}

// set stores a reading unconditionally.
func (t *proximityTracker) set(address string, rssi int) {
	t.mu.Lock()
	t.lastRSSI[address] = rssi
	t.mu.Unlock()
}

// clear drops the entry for one address.
func (t *proximityTracker) clear(address string) {
	t.mu.Lock()
	delete(t.lastRSSI, address)
	t.mu.Unlock()
}

// reset drops every entry.
func (t *proximityTracker) reset() {
	t.mu.Lock()
	t.lastRSSI = make(map[string]int)
	t.mu.Unlock()
}
