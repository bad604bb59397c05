// Package statestore holds the current authoritative snapshot of one match.
package statestore

import (
	"sync"
	"sync/atomic"

	"github.com/park285/dc-curling-client/internal/match"
)

// ErrNoState is returned by every accessor until the first snapshot has been
// applied. A zero score is not the same as an unknown score.
var ErrNoState = errf("no state yet")

// ApplyHook observes every applied snapshot. Hooks run on the applying
// goroutine and receive their own copy.
type ApplyHook func(st match.State)

// Store keeps exactly one snapshot. Apply replaces it atomically so readers
// always see a complete value.
type Store struct {
	cur atomic.Pointer[match.State]

	hookM sync.RWMutex
	hooks []ApplyHook
}

func New() *Store { return &Store{} }

// Apply replaces the current snapshot. No merge, no validation.
func (s *Store) Apply(st match.State) {
	cp := st.Clone()
	s.cur.Store(&cp)

	s.hookM.RLock()
	hooks := make([]ApplyHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hookM.RUnlock()
	for _, h := range hooks {
		if h != nil {
			h(st.Clone())
		}
	}
}

// OnApply registers a hook called after each Apply.
func (s *Store) OnApply(h ApplyHook) {
	s.hookM.Lock()
	defer s.hookM.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *Store) load() (*match.State, error) {
	st := s.cur.Load()
	if st == nil {
		return nil, ErrNoState
	}
	return st, nil
}

// Ready reports whether a snapshot has been applied.
func (s *Store) Ready() bool { return s.cur.Load() != nil }

// Snapshot returns a copy of the whole current state.
func (s *Store) Snapshot() (match.State, error) {
	st, err := s.load()
	if err != nil {
		return match.State{}, err
	}
	return st.Clone(), nil
}

func (s *Store) EndNumber() (int, error) {
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	return st.EndNumber, nil
}

// ShotNumber returns the total number of shots played in the match.
func (s *Store) ShotNumber() (int, error) {
	st, err := s.load()
	if err != nil {
		return 0, err
	}
	return st.TotalShotNumber, nil
}

// Score returns (first team, second team) totals.
func (s *Store) Score() (int, int, error) {
	st, err := s.load()
	if err != nil {
		return 0, 0, err
	}
	return st.Score.FirstTeam, st.Score.SecondTeam, nil
}

func (s *Store) NextShotTeam() (match.Team, error) {
	st, err := s.load()
	if err != nil {
		return "", err
	}
	return st.NextShotTeam, nil
}

func (s *Store) LastMove() (match.Move, error) {
	st, err := s.load()
	if err != nil {
		return match.Move{}, err
	}
	return st.Clone().LastMove, nil
}

// Winner returns nil while the match is still running.
func (s *Store) Winner() (*match.Team, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	if st.Winner == nil {
		return nil, nil
	}
	w := *st.Winner
	return &w, nil
}

// StoneCoordinates returns copies of team0's and team1's stone lists.
func (s *Store) StoneCoordinates() ([]match.Point, []match.Point, error) {
	st, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	return st.Stones.For(match.Team0), st.Stones.For(match.Team1), nil
}

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
