package conversation

import (
	"fmt"
	"sync"
)

// Observer receives every turn the moment it is appended. Implementations
// must not block; they are invoked while the log's lock is held.
type Observer interface {
	TurnAppended(role Role, turn Turn)
}

// Store owns the three fixed conversation logs. All state is
// process-lifetime only: logs are created empty at construction and are
// never truncated or deleted. Safe for concurrent use.
type Store struct {
	logs     map[Role]*log
	observer Observer
}

type log struct {
	mu    sync.Mutex
	turns []Turn
}

// NewStore creates a store with one empty log per fixed role.
func NewStore() *Store {
	logs := make(map[Role]*log, len(Roles))
	for _, role := range Roles {
		logs[role] = &log{}
	}
	return &Store{logs: logs}
}

// SetObserver registers a single observer for appended turns. Call before
// the store is shared across goroutines.
func (s *Store) SetObserver(obs Observer) {
	s.observer = obs
}

// Append adds turn to the end of the named log.
func (s *Store) Append(role Role, turn Turn) error {
	l, ok := s.logs[role]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	l.mu.Lock()
	l.turns = append(l.turns, turn)
	if s.observer != nil {
		s.observer.TurnAppended(role, turn)
	}
	l.mu.Unlock()

	return nil
}

// RecentWindow returns a copy of the last min(limit, len) turns of the
// named log in original order. It is a read view; the stored log is never
// mutated or shortened.
func (s *Store) RecentWindow(role Role, limit int) ([]Turn, error) {
	l, ok := s.logs[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if limit >= 0 && len(l.turns) > limit {
		start = len(l.turns) - limit
	}

	window := make([]Turn, len(l.turns)-start)
	copy(window, l.turns[start:])
	return window, nil
}

// Len reports the current length of the named log.
func (s *Store) Len(role Role) (int, error) {
	l, ok := s.logs[role]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns), nil
}

// Snapshot copies all three logs at once. Each log is snapshotted under
// its own lock, so the result is consistent per log, not across logs.
func (s *Store) Snapshot() History {
	return History{
		Partner1:  s.copyAll(RolePartner1),
		Partner2:  s.copyAll(RolePartner2),
		Therapist: s.copyAll(RoleTherapist),
	}
}

func (s *Store) copyAll(role Role) []Turn {
	l := s.logs[role]
	l.mu.Lock()
	defer l.mu.Unlock()

	turns := make([]Turn, len(l.turns))
	copy(turns, l.turns)
	return turns
}
