// Package dcclient is the match client: it registers a team, submits shots
// and stone placements, and follows the match over the event stream.
package dcclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dc-curling-client/internal/dcfast"
	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/obslog"
	"github.com/park285/dc-curling-client/internal/statestore"
	"github.com/park285/dc-curling-client/internal/stream"
)

// Options binds a client to one match.
type Options struct {
	BaseURL  string
	MatchID  match.MatchID
	Team     match.Team // requested slot, replaced by the server's answer
	Username string
	Password string

	// Timeout bounds each command and the stream handshake. Default 10s.
	Timeout time.Duration

	Logger *zap.Logger
	Store  *statestore.Store
	// Sinks are registered on the store and see every applied snapshot.
	Sinks []statestore.ApplyHook

	// Policy zero value means stream.DefaultPolicy(), which retries forever.
	// Stream only restarts a reader once a nonzero MaxConsecutiveFailures
	// makes it give up.
	Policy  stream.Policy
	Sleeper stream.Sleeper
	// Source overrides the stream source built from BaseURL.
	Source stream.Source
}

type Client struct {
	matchID match.MatchID
	http    *dcfast.Client
	source  stream.Source
	store   *statestore.Store
	policy  stream.Policy
	sleep   stream.Sleeper
	log     *zap.Logger

	teamM sync.RWMutex
	team  match.Team

	errM      sync.Mutex
	streamErr error
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if opts.MatchID == (match.MatchID{}) {
		return nil, ErrMissingMatchID
	}
	team := opts.Team
	if team == "" {
		team = match.Team1
	}
	if !team.Valid() {
		return nil, fmt.Errorf("%w: %q", match.ErrInvalidTeam, team)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = obslog.L()
	}
	store := opts.Store
	if store == nil {
		store = statestore.New()
	}
	for _, h := range opts.Sinks {
		store.OnApply(h)
	}
	policy := opts.Policy
	if policy == (stream.Policy{}) {
		policy = stream.DefaultPolicy()
	}

	c := &Client{
		matchID: opts.MatchID,
		http: dcfast.NewClient(opts.BaseURL,
			dcfast.WithBasicAuth(opts.Username, opts.Password),
			dcfast.WithTimeout(timeout),
		),
		store:  store,
		policy: policy,
		sleep:  opts.Sleeper,
		log:    log.With(zap.String("match_id", opts.MatchID.String())),
		team:   team,
	}
	c.source = opts.Source
	if c.source == nil {
		c.source = c.http.EventSource("/matches/" + url.PathEscape(c.matchID.String()) + "/stream")
	}
	return c, nil
}

func (c *Client) MatchID() match.MatchID { return c.matchID }

// Team returns the current assignment: the requested slot until a
// registration succeeds, the server's answer afterwards.
func (c *Client) Team() match.Team {
	c.teamM.RLock()
	defer c.teamM.RUnlock()
	return c.team
}

func (c *Client) Store() *statestore.Store { return c.store }

// RegisterTeam sends the team config and adopts the slot the server
// assigns, which may differ from the one requested. On any failure the
// assignment is left unchanged and returned along with the error.
func (c *Client) RegisterTeam(ctx context.Context, cfg match.TeamConfig) (match.Team, error) {
	expected := c.Team()
	q := url.Values{
		"match_id":                 {c.matchID.String()},
		"expected_match_team_name": {expected.String()},
	}
	log := c.log.With(zap.String("expected_team", expected.String()), zap.String("team_name", cfg.TeamName))

	out, err := c.http.Post(ctx, "/store-team-config", q, cfg)
	if err != nil {
		if errors.Is(err, dcfast.ErrConnectionUnavailable) {
			log.Error("team_register_unavailable", zap.Error(err))
		} else {
			log.Error("team_register_error", zap.Error(err))
		}
		return expected, err
	}

	switch out.Kind() {
	case dcfast.KindOK:
		team, perr := parseAssignment(out)
		if perr != nil {
			log.Error("team_register_bad_body", zap.String("body", out.String()), zap.Error(perr))
			return expected, perr
		}
		c.teamM.Lock()
		c.team = team
		c.teamM.Unlock()
		if team != expected {
			log.Info("team_reassigned", zap.String("team", team.String()))
		}
		log.Info("team_register_ok", zap.String("team", team.String()))
		return team, nil
	case dcfast.KindValidation:
		log.Error("team_register_invalid", zap.Int("status", out.Status), zap.String("body", out.String()))
	case dcfast.KindAuth:
		log.Error("team_register_unauthorized", zap.Int("status", out.Status), zap.String("body", out.String()))
	default:
		log.Error("team_register_error", zap.Int("status", out.Status), zap.String("body", out.String()))
	}
	return expected, out.Err("register team")
}

// parseAssignment reads a bare JSON string, raw text, or an object carrying
// match_team_name.
func parseAssignment(out *dcfast.Outcome) (match.Team, error) {
	if out.Structured {
		var echo struct {
			MatchTeamName string `json:"match_team_name"`
		}
		if err := out.Decode(&echo); err == nil && echo.MatchTeamName != "" {
			return match.ParseTeam(echo.MatchTeamName)
		}
	}
	return match.ParseTeam(out.Text())
}

// SubmitShot posts one shot. It is never retried.
func (c *Client) SubmitShot(ctx context.Context, shot match.ShotCommand) error {
	log := c.log.With(
		zap.Float64("velocity", shot.TranslationalVelocity),
		zap.Float64("angle", shot.ShotAngle),
		zap.Float64("angular_velocity", shot.AngularVelocity),
	)
	if err := shot.Validate(); err != nil {
		log.Error("shot_invalid", zap.Error(err))
		return err
	}

	q := url.Values{"match_id": {c.matchID.String()}}
	out, err := c.http.Post(ctx, "/shots", q, shot)
	if err != nil {
		if errors.Is(err, dcfast.ErrConnectionUnavailable) {
			log.Error("shot_submit_unavailable", zap.Error(err))
		} else {
			log.Error("shot_submit_error", zap.Error(err))
		}
		return err
	}
	switch out.Kind() {
	case dcfast.KindOK:
		log.Debug("shot_submit_ok", zap.String("body", out.String()))
		return nil
	case dcfast.KindAuth:
		log.Error("shot_submit_unauthorized", zap.Int("status", out.Status), zap.String("body", out.String()))
	default:
		log.Error("shot_submit_error", zap.Int("status", out.Status), zap.String("body", out.String()))
	}
	return out.Err("submit shot")
}

// SubmitShotVector converts a velocity vector and a curl tag to a shot.
// "cw" and "ccw" select the curl; any other tag keeps the default
// clockwise curl.
func (c *Client) SubmitShotVector(ctx context.Context, vx, vy float64, rotation string) error {
	return c.SubmitShot(ctx, match.ShotFromVector(vx, vy, rotation))
}

// SubmitStonePlacement sends the pre-end stone setup used in mixed doubles.
func (c *Client) SubmitStonePlacement(ctx context.Context, p match.StonePlacement) error {
	q := url.Values{
		"match_id": {c.matchID.String()},
		"request":  {p.String()},
	}
	path := "/matches/" + url.PathEscape(c.matchID.String()) + "/end-setup"
	log := c.log.With(zap.String("placement", p.String()))

	out, err := c.http.Post(ctx, path, q, nil)
	if err != nil {
		if errors.Is(err, dcfast.ErrConnectionUnavailable) {
			log.Error("placement_unavailable", zap.Error(err))
		} else {
			log.Error("placement_error", zap.Error(err))
		}
		return err
	}
	switch out.Kind() {
	case dcfast.KindOK:
		log.Info("placement_ok")
		return nil
	case dcfast.KindValidation:
		log.Error("placement_invalid", zap.Int("status", out.Status), zap.String("body", out.String()))
	case dcfast.KindAuth:
		log.Error("placement_unauthorized", zap.Int("status", out.Status), zap.String("body", out.String()))
	case dcfast.KindConflict:
		log.Warn("placement_conflict", zap.Int("status", out.Status), zap.String("body", out.String()))
	default:
		log.Error("placement_error", zap.Int("status", out.Status), zap.String("body", out.String()))
	}
	return out.Err("submit stone placement")
}

var (
	ErrMissingBaseURL = errf("base url is required")
	ErrMissingMatchID = errf("match id is required")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
