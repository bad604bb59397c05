package match

import (
	"encoding/json"
	"maps"
)

// MatchSetup is the body of a match creation request. Known settings are
// typed; anything else in the setting file travels through Extra unchanged.
type MatchSetup struct {
	StandardEndCount  int     `json:"standard_end_count,omitempty" yaml:"standard_end_count,omitempty"`
	TimeLimit         float64 `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	ExtraEndTimeLimit float64 `json:"extra_end_time_limit,omitempty" yaml:"extra_end_time_limit,omitempty"`
	Simulator         string  `json:"simulator,omitempty" yaml:"simulator,omitempty"`
	AppliedRule       string  `json:"applied_rule,omitempty" yaml:"applied_rule,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

// Validate rejects settings the server would answer with 422 anyway.
func (s MatchSetup) Validate() error {
	if s.StandardEndCount < 0 || s.TimeLimit < 0 || s.ExtraEndTimeLimit < 0 {
		return ErrInvalidSetup
	}
	return nil
}

func (s MatchSetup) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+5)
	maps.Copy(out, s.Extra)
	if s.StandardEndCount != 0 {
		out["standard_end_count"] = s.StandardEndCount
	}
	if s.TimeLimit != 0 {
		out["time_limit"] = s.TimeLimit
	}
	if s.ExtraEndTimeLimit != 0 {
		out["extra_end_time_limit"] = s.ExtraEndTimeLimit
	}
	if s.Simulator != "" {
		out["simulator"] = s.Simulator
	}
	if s.AppliedRule != "" {
		out["applied_rule"] = s.AppliedRule
	}
	return json.Marshal(out)
}

func (s *MatchSetup) UnmarshalJSON(b []byte) error {
	type plain MatchSetup
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range []string{"standard_end_count", "time_limit", "extra_end_time_limit", "simulator", "applied_rule"} {
		delete(all, k)
	}
	p.Extra = nil
	if len(all) > 0 {
		p.Extra = all
	}
	*s = MatchSetup(p)
	return nil
}
