package session

import (
	"errors"
	"sync"
)

// ErrInvalidTransition is returned for lifecycle moves the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the single owner of session fields. All methods are safe for
// concurrent use; readers only ever see complete snapshots.
type State struct {
	mu       sync.RWMutex
	status   Status
	identity Identity
	pending  *Identity
	version  uint64
	resolved chan struct{}
}

// NewState returns a State in [Uninitialized].
func NewState() *State {
	return &State{resolved: make(chan struct{})}
}

// Snapshot returns the current session view.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.status,
		IsLoading: s.status == Uninitialized || s.status == Resolving,
	}
	if s.status == Authenticated {
		snap.IsAuthenticated = true
		snap.Role = s.identity.Role
		snap.Username = s.identity.Username
	}
	return snap
}

// Version increments on every observable change.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Resolved is closed once resolution finishes.
func (s *State) Resolved() <-chan struct{} {
	return s.resolved
}

// BeginResolve moves Uninitialized → Resolving.
func (s *State) BeginResolve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Uninitialized {
		return ErrInvalidTransition
	}
	s.status = Resolving
	s.version++
	return nil
}

// FinishResolve ends resolution. A non-nil id authenticates; nil falls back
// to an identity recorded by [State.Refreshed] during resolution, if any.
func (s *State) FinishResolve(id *Identity) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Resolving {
		return s.snapshotLocked(), ErrInvalidTransition
	}
	if id == nil {
		id = s.pending
	}
	s.pending = nil
	if id != nil {
		s.status = Authenticated
		s.identity = *id
	} else {
		s.status = Anonymous
		s.identity = Identity{}
	}
	s.version++
	close(s.resolved)
	return s.snapshotLocked(), nil
}

// SignIn installs id after an explicit login. Only valid once resolved.
func (s *State) SignIn(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Authenticated && s.status != Anonymous {
		return ErrInvalidTransition
	}
	s.status = Authenticated
	s.identity = id
	s.version++
	return nil
}

// SignOut moves to Anonymous and reports whether an identity was dropped.
func (s *State) SignOut() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Authenticated:
		s.status = Anonymous
		s.identity = Identity{}
		s.version++
		return true, nil
	case Anonymous:
		return false, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Refreshed records the identity from a successful refresh. While resolving
// it is held back until [State.FinishResolve].
func (s *State) Refreshed(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Uninitialized, Resolving:
		s.pending = &id
	default:
		s.status = Authenticated
		s.identity = id
		s.version++
	}
}

// Expire handles a failed refresh: an authenticated session becomes
// anonymous and a pending identity is discarded. It reports whether the
// visible identity changed.
func (s *State) Expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.status != Authenticated {
		return false
	}
	s.status = Anonymous
	s.identity = Identity{}
	s.version++
	return true
}
