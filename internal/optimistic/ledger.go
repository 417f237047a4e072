// Package optimistic tracks client-side provisional mutations so each one
// ends in exactly one ack or rollback.
package optimistic

import (
	"errors"
	"fmt"
	"sync"
)

// State of one provisional mutation.
type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Committed || s == RolledBack
}

var ErrInvalidTransition = errors.New("invalid optimistic state transition")

// Entry is a mutation the client applied locally before the server confirmed it.
type Entry struct {
	ClientRef string
	Kind      string
	WaveID    uint
	State     State
}

// Ledger holds the entries of one realtime session. Settled entries are
// remembered so a replayed ref is refused rather than applied twice.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
	settled []string // refs in settle order, oldest first
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Begin moves clientRef from Idle to Pending. Reusing a ref that is still
// pending or already settled is an invalid transition.
func (l *Ledger) Begin(clientRef, kind string, waveID uint) (Entry, error) {
	if clientRef == "" {
		return Entry{}, fmt.Errorf("%w: empty client_ref", ErrInvalidTransition)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[clientRef]; ok {
		return *e, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, clientRef, e.State)
	}
	e := &Entry{ClientRef: clientRef, Kind: kind, WaveID: waveID, State: Pending}
	l.entries[clientRef] = e
	return *e, nil
}

// Commit moves a pending entry to Committed.
func (l *Ledger) Commit(clientRef string) (Entry, error) {
	return l.settle(clientRef, Committed)
}

// Rollback moves a pending entry to RolledBack.
func (l *Ledger) Rollback(clientRef string) (Entry, error) {
	return l.settle(clientRef, RolledBack)
}

func (l *Ledger) settle(clientRef string, to State) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[clientRef]
	if !ok {
		return Entry{ClientRef: clientRef}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, clientRef, Idle)
	}
	if e.State != Pending {
		return *e, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.State, to)
	}
	e.State = to
	l.settled = append(l.settled, clientRef)
	return *e, nil
}

// Get returns the entry for clientRef, or an Idle entry if unknown.
func (l *Ledger) Get(clientRef string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[clientRef]; ok {
		return *e
	}
	return Entry{ClientRef: clientRef, State: Idle}
}

// Pending lists entries still waiting for the server.
func (l *Ledger) Pending() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.State == Pending {
			out = append(out, *e)
		}
	}
	return out
}

// Prune forgets the oldest settled entries until at most keep remain and
// returns how many it dropped. Pending entries are never pruned.
func (l *Ledger) Prune(keep int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.settled) - max(keep, 0)
	if n <= 0 {
		return 0
	}
	for _, ref := range l.settled[:n] {
		delete(l.entries, ref)
	}
	l.settled = append([]string(nil), l.settled[n:]...)
	return n
}

// Reset drops everything. Called when the session closes.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = make(map[string]*Entry)
	l.settled = nil
	l.mu.Unlock()
}
