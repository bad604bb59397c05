package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/park285/dc-curling-client/internal/match"
)

// LoadTeamConfig reads a team config file in JSON or YAML.
func LoadTeamConfig(path string) (match.TeamConfig, error) {
	var tc match.TeamConfig
	if err := decodeFile(path, &tc); err != nil {
		return match.TeamConfig{}, err
	}
	if err := tc.Validate(); err != nil {
		return match.TeamConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return tc, nil
}

// LoadMatchSetup reads the match setting file sent on match creation.
func LoadMatchSetup(path string) (match.MatchSetup, error) {
	var s match.MatchSetup
	if err := decodeFile(path, &s); err != nil {
		return match.MatchSetup{}, err
	}
	if err := s.Validate(); err != nil {
		return match.MatchSetup{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadMatchID reads the id written by WriteMatchID: a JSON string holding
// the UUID. A bare UUID is accepted too.
func ReadMatchID(path string) (match.MatchID, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return match.MatchID{}, fmt.Errorf("read match id: %w", err)
	}
	return match.ParseMatchID(string(raw))
}

// WriteMatchID stores id as a JSON string, replacing the file atomically.
func WriteMatchID(path string, id match.MatchID) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".match_id-*")
	if err != nil {
		return fmt.Errorf("write match id: %w", err)
	}
	if _, err := fmt.Fprintf(tmp, "%q", id.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write match id: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write match id: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write match id: %w", err)
	}
	return nil
}

func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if json.Valid(raw) {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
