package transfer

import (
	"sync"
	"time"

	"pixwallet/internal/domain"
)

const (
	stateTTL         = 60 * time.Minute
	maxTransferStates = 10_000
)

// stateEntry tracks one endToEndId's in-memory status, used to accelerate
// compare-and-set decisions without always touching the database.
type stateEntry struct {
	mu         sync.Mutex
	status     domain.TransferStatus
	createdAt  time.Time
	lastAccess time.Time
}

// stateMap is the process-wide advisory cache of endToEndId -> state. The
// authoritative record is always the database row; a miss here simply means
// reloading from storage.
type stateMap struct {
	mu      sync.Mutex
	entries map[string]*stateEntry
}

func newStateMap() *stateMap {
	return &stateMap{entries: make(map[string]*stateEntry)}
}

// loadOrStore returns the entry for endToEndID, creating it with the given
// status if absent. now is used for TTL bookkeeping.
func (m *stateMap) loadOrStore(endToEndID string, status domain.TransferStatus, now time.Time) (*stateEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[endToEndID]; ok {
		e.lastAccess = now
		return e, true
	}

	if len(m.entries) >= maxTransferStates {
		m.evictOldestLocked()
	}

	e := &stateEntry{status: status, createdAt: now, lastAccess: now}
	m.entries[endToEndID] = e
	return e, false
}

func (m *stateMap) get(endToEndID string) (*stateEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[endToEndID]
	return e, ok
}

// remove drops the reservation for endToEndID, e.g. after a failed debit
// that never produced a persisted transfer.
func (m *stateMap) remove(endToEndID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, endToEndID)
}

func (m *stateMap) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	found := false

	for k, e := range m.entries {
		if !found || e.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccess
			found = true
		}
	}

	if found {
		delete(m.entries, oldestKey)
	}
}

// sweepExpired evicts every entry whose lastAccess is older than stateTTL,
// or that has already reached a terminal status. Returns the count removed.
func (m *stateMap) sweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		e.mu.Lock()
		expired := now.Sub(e.lastAccess) > stateTTL
		terminal := e.status == domain.TransferConfirmed || e.status == domain.TransferRejected
		e.mu.Unlock()

		if expired || terminal {
			delete(m.entries, k)
			removed++
		}
	}

	return removed
}

// casStatus attempts to move the entry from PENDING to target. It fails if
// the entry is not currently PENDING.
func (e *stateEntry) casStatus(target domain.TransferStatus, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != domain.TransferPending {
		return false
	}
	e.status = target
	e.lastAccess = now
	return true
}
