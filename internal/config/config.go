package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/dc-curling-client/internal/match"
)

type AppConfig struct {
	BaseURL string

	// Slot selects MATCH_USER_NAME<slot>/PASS_WORD<slot> so two clients can
	// share one .env.
	Slot     int
	Username string
	Password string

	MatchID          string
	MatchIDFile      string
	TeamConfigFile   string
	MatchSettingFile string

	ExpectedTeam match.Team

	HTTPTimeout       time.Duration
	StreamReadTimeout time.Duration

	RedisURL string
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set win over .env.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the config from the environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		BaseURL:           "http://localhost:10000",
		MatchIDFile:       "match_id.json",
		TeamConfigFile:    "team_config.json",
		MatchSettingFile:  "setting.json",
		ExpectedTeam:      match.Team1,
		HTTPTimeout:       10 * time.Second,
		StreamReadTimeout: 60 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("DC_BASE_URL")); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("DC_CLIENT_SLOT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("DC_CLIENT_SLOT must be a non-negative integer, got %q", v)
		}
		cfg.Slot = n
	}
	cfg.Username = strings.TrimSpace(os.Getenv("MATCH_USER_NAME" + strconv.Itoa(cfg.Slot)))
	cfg.Password = strings.TrimSpace(os.Getenv("PASS_WORD" + strconv.Itoa(cfg.Slot)))

	cfg.MatchID = strings.TrimSpace(os.Getenv("MATCH_ID"))
	if v := strings.TrimSpace(os.Getenv("MATCH_ID_FILE")); v != "" {
		cfg.MatchIDFile = v
	}
	if v := strings.TrimSpace(os.Getenv("TEAM_CONFIG_FILE")); v != "" {
		cfg.TeamConfigFile = v
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_SETTING_FILE")); v != "" {
		cfg.MatchSettingFile = v
	}
	if v := strings.TrimSpace(os.Getenv("EXPECTED_TEAM")); v != "" {
		t, err := match.ParseTeam(v)
		if err != nil {
			return nil, fmt.Errorf("EXPECTED_TEAM: %w", err)
		}
		cfg.ExpectedTeam = t
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("STREAM_READ_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamReadTimeout = time.Duration(n) * time.Second
		}
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	if cfg.Username == "" {
		return nil, fmt.Errorf("MATCH_USER_NAME%d is required", cfg.Slot)
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("PASS_WORD%d is required", cfg.Slot)
	}
	return cfg, nil
}

// ResolveMatchID prefers MATCH_ID and falls back to the match id file.
func (c *AppConfig) ResolveMatchID() (match.MatchID, error) {
	if c.MatchID != "" {
		return match.ParseMatchID(c.MatchID)
	}
	return ReadMatchID(c.MatchIDFile)
}
