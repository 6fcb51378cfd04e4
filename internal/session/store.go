package session

import "sync"

// ChangeKind describes how the log was mutated
type ChangeKind int8

const (
	ChangeHydrated = ChangeKind(iota)
	ChangeAppended
	ChangeCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeHydrated:
		return "hydrated"
	case ChangeAppended:
		return "appended"
	case ChangeCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after every mutation
type Change struct {
	Kind ChangeKind
	Log  Log
}

// Store holds the conversation log in memory.
// Each mutation installs a new snapshot; snapshots handed out earlier are
// never modified.
type Store struct {
	mu        sync.RWMutex
	log       Log
	listeners []func(Change)
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		log: Log{},
	}
}

// Subscribe registers fn to be called synchronously after each mutation
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current log
func (s *Store) Snapshot() Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log.Clone()
}

// Len returns the number of turns
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Append pushes a user turn followed by a model turn and returns the new log
func (s *Store) Append(userText, modelText string) Log {
	s.mu.Lock()
	next := make(Log, 0, len(s.log)+2)
	next = append(next, s.log...)
	next = append(next, NewTurn(RoleUser, userText), NewTurn(RoleModel, modelText))
	return s.install(ChangeAppended, next)
}

// Clear empties the log and returns it
func (s *Store) Clear() Log {
	s.mu.Lock()
	return s.install(ChangeCleared, Log{})
}

// Replace installs a log loaded from durable storage
func (s *Store) Replace(log Log) Log {
	s.mu.Lock()
	if log == nil {
		log = Log{}
	}
	return s.install(ChangeHydrated, log.Clone())
}

// install must be called with s.mu held; it releases the lock before
// notifying listeners.
func (s *Store) install(kind ChangeKind, next Log) Log {
	s.log = next
	listeners := make([]func(Change), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(Change{Kind: kind, Log: next.Clone()})
	}
	return next.Clone()
}
