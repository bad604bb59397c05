package match

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is one authoritative snapshot of match progress. A new snapshot
// replaces the previous one entirely.
type State struct {
	EndNumber       int              `json:"end_number"`
	ShotNumber      int              `json:"shot_number"`
	TotalShotNumber int              `json:"total_shot_number"`
	Score           Score            `json:"score"`
	NextShotTeam    Team             `json:"next_shot_team"`
	LastMove        Move             `json:"last_move"`
	Winner          *Team            `json:"winner_team"`
	Stones          StoneCoordinates `json:"stone_coordinate"`

	FirstTeamName           string  `json:"first_team_name,omitempty"`
	SecondTeamName          string  `json:"second_team_name,omitempty"`
	FirstTeamRemainingTime  float64 `json:"first_team_remaining_time,omitempty"`
	SecondTeamRemainingTime float64 `json:"second_team_remaining_time,omitempty"`
}

// Finished reports whether the server has declared a winner.
func (s State) Finished() bool { return s.Winner != nil }

// Clone returns a copy that shares no slices or maps with s.
func (s State) Clone() State {
	out := s
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	out.LastMove = Move{raw: bytes.Clone(s.LastMove.raw)}
	out.Score.FirstTeamEnds = cloneInts(s.Score.FirstTeamEnds)
	out.Score.SecondTeamEnds = cloneInts(s.Score.SecondTeamEnds)
	if s.Stones.Data != nil {
		out.Stones.Data = make(map[Team][]Point, len(s.Stones.Data))
		for team, pts := range s.Stones.Data {
			out.Stones.Data[team] = append([]Point(nil), pts...)
		}
	}
	return out
}

func (s *State) normalize() {
	if s.Winner != nil && !s.Winner.Valid() {
		s.Winner = nil
	}
}

// Point is a stone position on the sheet in metres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StoneCoordinates holds stone positions keyed by team, in server order.
type StoneCoordinates struct {
	Data map[Team][]Point `json:"data"`
}

// For returns a copy of the team's stones; a missing team yields an empty
// slice.
func (c StoneCoordinates) For(team Team) []Point {
	pts := c.Data[team]
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Score carries both teams' totals. When the server reports per-end points
// they are kept in the *Ends fields and summed into the totals.
type Score struct {
	FirstTeam  int
	SecondTeam int
	// FirstTeamEnds and SecondTeamEnds list the points of played ends only.
	// Null entries are skipped, so an index is not an end number once the
	// server sends a null before a scored end.
	FirstTeamEnds  []int
	SecondTeamEnds []int
}

type scoreWire struct {
	First  json.RawMessage `json:"first_team_score"`
	Second json.RawMessage `json:"second_team_score"`
}

func (s *Score) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = Score{}
		return nil
	}
	var w scoreWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	first, firstEnds, err := decodeTally(w.First)
	if err != nil {
		return fmt.Errorf("first_team_score: %w", err)
	}
	second, secondEnds, err := decodeTally(w.Second)
	if err != nil {
		return fmt.Errorf("second_team_score: %w", err)
	}
	*s = Score{FirstTeam: first, SecondTeam: second, FirstTeamEnds: firstEnds, SecondTeamEnds: secondEnds}
	return nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	w := struct {
		First  any `json:"first_team_score"`
		Second any `json:"second_team_score"`
	}{First: s.FirstTeam, Second: s.SecondTeam}
	if s.FirstTeamEnds != nil {
		w.First = s.FirstTeamEnds
	}
	if s.SecondTeamEnds != nil {
		w.Second = s.SecondTeamEnds
	}
	return json.Marshal(w)
}

// decodeTally accepts a number or a list of per-end points (null for ends
// not yet played).
func decodeTally(raw json.RawMessage) (int, []int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil, nil
	}
	if raw[0] != '[' {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, nil, err
		}
		return n, nil, nil
	}
	var ends []*int
	if err := json.Unmarshal(raw, &ends); err != nil {
		return 0, nil, err
	}
	total := 0
	out := make([]int, 0, len(ends))
	for _, e := range ends {
		if e == nil {
			continue
		}
		total += *e
		out = append(out, *e)
	}
	return total, out, nil
}

// Move is the server's description of the last shot, kept verbatim.
type Move struct {
	raw json.RawMessage
}

func (m *Move) UnmarshalJSON(b []byte) error {
	m.raw = bytes.Clone(b)
	return nil
}

func (m Move) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return []byte("null"), nil
	}
	return m.raw, nil
}

func (m Move) Empty() bool {
	return len(m.raw) == 0 || bytes.Equal(m.raw, []byte("null"))
}

// Decode unmarshals the description into v.
func (m Move) Decode(v any) error {
	if m.Empty() {
		return ErrNoMove
	}
	return json.Unmarshal(m.raw, v)
}

func (m Move) String() string {
	if m.Empty() {
		return ""
	}
	var s string
	if json.Unmarshal(m.raw, &s) == nil {
		return s
	}
	return string(m.raw)
}

// NewMove wraps an already encoded description.
func NewMove(raw []byte) Move { return Move{raw: bytes.Clone(raw)} }

var ErrNoMove = errf("no last move")

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	return append([]int(nil), in...)
}
