package dcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/dc-curling-client/internal/dcfast"
	"github.com/park285/dc-curling-client/internal/fakeserver"
	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/sse"
	"github.com/park285/dc-curling-client/internal/statestore"
	"github.com/park285/dc-curling-client/internal/stream"
)

const snapshotJSON = `{
  "end_number": 2,
  "shot_number": 3,
  "total_shot_number": 19,
  "score": {"first_team_score": [1, 0, null], "second_team_score": [0, 2, null]},
  "next_shot_team": "team1",
  "last_move": {"translational_velocity": 2.4, "shot_angle": 1.6, "angular_velocity": 1.57},
  "winner_team": null,
  "stone_coordinate": {"data": {"team0": [{"x": 0.5, "y": 38.0}], "team1": []}}
}`

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testPolicy() stream.Policy {
	return stream.Policy{
		TimeoutDelay:    time.Millisecond,
		ErrorDelay:      time.Millisecond,
		ReconnectDelay:  time.Millisecond,
		MaxConnectRetry: 1,
		ReadTimeout:     5 * time.Second,
	}
}

type harness struct {
	c    *Client
	srv  *fakeserver.Server
	logs *observer.ObservedLogs
	id   match.MatchID
}

func newHarness(t *testing.T, password string, mutate func(*Options)) *harness {
	t.Helper()
	srv := fakeserver.New("user0", "pw0")
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.DebugLevel)
	opts := Options{
		BaseURL:  srv.URL,
		MatchID:  uuid.New(),
		Username: "user0",
		Password: password,
		Timeout:  2 * time.Second,
		Logger:   zap.New(core),
		Policy:   testPolicy(),
		Sleeper:  noSleep,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil { t.Fatalf("New: %v", err) }
	return &harness{c: c, srv: srv, logs: logs, id: opts.MatchID}
}

func TestNewRejectsIncompleteOptions(t *testing.T) {
	if _, err := New(Options{MatchID: uuid.New()}); !errors.Is(err, ErrMissingBaseURL) { t.Fatalf("err = %v", err) }
	if _, err := New(Options{BaseURL: "http://x"}); !errors.Is(err, ErrMissingMatchID) { t.Fatalf("err = %v", err) }
	if _, err := New(Options{BaseURL: "http://x", MatchID: uuid.New(), Team: "team3"}); !errors.Is(err, match.ErrInvalidTeam) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisterTeamAdoptsServerAssignment(t *testing.T) {
	h := newHarness(t, "pw0", func(o *Options) { o.Team = match.Team0 })
	team, err := h.c.RegisterTeam(context.Background(), match.TeamConfig{TeamName: "sweepers", UseDefaultConfig: true})
	if err != nil { t.Fatalf("RegisterTeam: %v", err) }
	if team != match.Team1 || h.c.Team() != match.Team1 { t.Fatalf("team = %s, current = %s", team, h.c.Team()) }

	reqs := h.srv.RequestsTo(fakeserver.RouteTeam)
	if len(reqs) != 1 { t.Fatalf("expected 1 registration, got %d", len(reqs)) }
	q := reqs[0].Query
	if q.Get("match_id") != h.id.String() || q.Get("expected_match_team_name") != "team0" { t.Fatalf("query = %v", q) }
	var body map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil || body["team_name"] != "sweepers" { t.Fatalf("body = %s", reqs[0].Body) }

	if h.logs.FilterMessage("team_reassigned").Len() != 1 || h.logs.FilterMessage("team_register_ok").Len() != 1 {
		t.Fatalf("logs = %v", h.logs.All())
	}
}

func TestRegisterTeamBodyForms(t *testing.T) {
	cases := map[string]match.Team{
		`"team1"`:                     match.Team1,
		`team0`:                       match.Team0,
		`{"match_team_name":"team0"}`: match.Team0,
	}
	for body, want := range cases {
		h := newHarness(t, "pw0", nil)
		h.srv.SetResponse(fakeserver.RouteTeam, http.StatusOK, body)
		got, err := h.c.RegisterTeam(context.Background(), match.TeamConfig{TeamName: "t"})
		if err != nil || got != want { t.Fatalf("body %s: got %s, %v", body, got, err) }
	}
}

func TestRegisterTeamFailureKeepsAssignment(t *testing.T) {
	h := newHarness(t, "wrong", nil)
	team, err := h.c.RegisterTeam(context.Background(), match.TeamConfig{TeamName: "t"})
	if !errors.Is(err, dcfast.ErrUnauthorized) { t.Fatalf("expected ErrUnauthorized, got %v", err) }
	if team != match.Team1 || h.c.Team() != match.Team1 { t.Fatalf("assignment changed to %s", h.c.Team()) }
	if h.logs.FilterMessage("team_register_unauthorized").Len() != 1 { t.Fatalf("logs = %v", h.logs.All()) }

	h2 := newHarness(t, "pw0", nil)
	h2.srv.SetResponse(fakeserver.RouteTeam, http.StatusBadRequest, `{"detail":"bad"}`)
	if _, err := h2.c.RegisterTeam(context.Background(), match.TeamConfig{TeamName: "t"}); !errors.Is(err, dcfast.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if h2.logs.FilterMessage("team_register_invalid").Len() != 1 { t.Fatalf("logs = %v", h2.logs.All()) }

	h3 := newHarness(t, "pw0", nil)
	h3.srv.DropNext(fakeserver.RouteTeam, 1)
	if _, err := h3.c.RegisterTeam(context.Background(), match.TeamConfig{TeamName: "t"}); !errors.Is(err, dcfast.ErrConnectionUnavailable) {
		t.Fatalf("expected ErrConnectionUnavailable, got %v", err)
	}
	if h3.c.Team() != match.Team1 || h3.logs.FilterMessage("team_register_unavailable").Len() != 1 { t.Fatalf("logs = %v", h3.logs.All()) }
}

func TestSubmitShotUnauthorizedLogsOnce(t *testing.T) {
	h := newHarness(t, "wrong", nil)
	err := h.c.SubmitShot(context.Background(), match.ShotCommand{TranslationalVelocity: 2.3, ShotAngle: 1.6, AngularVelocity: match.DefaultAngularVelocity})
	if !errors.Is(err, dcfast.ErrUnauthorized) { t.Fatalf("expected ErrUnauthorized, got %v", err) }

	errs := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 || errs[0].Message != "shot_submit_unauthorized" { t.Fatalf("error logs = %v", errs) }
	if n := len(h.srv.RequestsTo(fakeserver.RouteShots)); n != 1 { t.Fatalf("expected a single attempt, got %d", n) }
}

func TestSubmitShotVectorSendsPolarForm(t *testing.T) {
	h := newHarness(t, "pw0", nil)
	if err := h.c.SubmitShotVector(context.Background(), 3, 4, match.RotationCCW); err != nil { t.Fatalf("SubmitShotVector: %v", err) }
	reqs := h.srv.RequestsTo(fakeserver.RouteShots)
	if len(reqs) != 1 || reqs[0].Query.Get("match_id") != h.id.String() { t.Fatalf("requests = %+v", reqs) }
	var shot match.ShotCommand
	if err := json.Unmarshal(reqs[0].Body, &shot); err != nil { t.Fatalf("body: %v", err) }
	if shot.TranslationalVelocity != 5 || shot.AngularVelocity >= 0 { t.Fatalf("shot = %+v", shot) }
	if h.logs.FilterMessage("shot_submit_ok").Len() != 1 { t.Fatalf("logs = %v", h.logs.All()) }
}

func TestSubmitShotRejectsInvalidLocally(t *testing.T) {
	h := newHarness(t, "pw0", nil)
	if err := h.c.SubmitShot(context.Background(), match.ShotCommand{TranslationalVelocity: -1}); !errors.Is(err, match.ErrInvalidShot) {
		t.Fatalf("expected ErrInvalidShot, got %v", err)
	}
	if n := len(h.srv.RequestsTo(fakeserver.RouteShots)); n != 0 { t.Fatalf("invalid shot reached the server") }
}

func TestSubmitStonePlacementStatuses(t *testing.T) {
	cases := []struct {
		status int
		msg    string
		is     error
	}{
		{http.StatusOK, "placement_ok", nil},
		{http.StatusBadRequest, "placement_invalid", dcfast.ErrValidation},
		{http.StatusConflict, "placement_conflict", dcfast.ErrConflict},
		{http.StatusInternalServerError, "placement_error", nil},
	}
	for _, tc := range cases {
		h := newHarness(t, "pw0", nil)
		h.srv.SetResponse(fakeserver.RouteSetup, tc.status, `{"detail":"x"}`)
		err := h.c.SubmitStonePlacement(context.Background(), match.PlacementCenterGuard)
		switch {
		case tc.status == http.StatusOK && err != nil:
			t.Fatalf("status %d: %v", tc.status, err)
		case tc.is != nil && !errors.Is(err, tc.is):
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.is, err)
		case tc.status >= 500:
			var serr *dcfast.StatusError
			if !errors.As(err, &serr) || serr.Status != tc.status { t.Fatalf("status %d: got %v", tc.status, err) }
		}
		if h.logs.FilterMessage(tc.msg).Len() != 1 { t.Fatalf("status %d: logs = %v", tc.status, h.logs.All()) }

		reqs := h.srv.RequestsTo(fakeserver.RouteSetup)
		if len(reqs) != 1 { t.Fatalf("expected 1 request, got %d", len(reqs)) }
		if reqs[0].Query.Get("request") != "center_guard" || !strings.Contains(reqs[0].Path, h.id.String()) {
			t.Fatalf("request = %+v", reqs[0])
		}
	}
}

func TestReadsBeforeFirstSnapshot(t *testing.T) {
	h := newHarness(t, "pw0", nil)
	if _, err := h.c.CurrentEndNumber(); !errors.Is(err, statestore.ErrNoState) { t.Fatalf("err = %v", err) }
	if _, _, err := h.c.CurrentScore(); !errors.Is(err, statestore.ErrNoState) { t.Fatalf("err = %v", err) }
	if _, err := h.c.Winner(); !errors.Is(err, statestore.ErrNoState) { t.Fatalf("err = %v", err) }
}

func TestStreamAppliesSnapshotsAndEndsOnDrop(t *testing.T) {
	var sinkM sync.Mutex
	var sunk []match.State
	h := newHarness(t, "pw0", func(o *Options) {
		o.Sinks = []statestore.ApplyHook{func(st match.State) {
			sinkM.Lock()
			sunk = append(sunk, st)
			sinkM.Unlock()
		}}
	})
	h.srv.Push(sse.Event{Type: match.EventStateUpdate, Data: strings.Replace(snapshotJSON, `"end_number": 2`, `"end_number": 9`, 1)})
	h.srv.Push(sse.Event{Type: match.EventLatestStateUpdate, Data: snapshotJSON, ID: "1"})
	h.srv.Drop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []match.State
	for st := range h.c.Stream(ctx) {
		got = append(got, st)
	}

	if len(got) != 1 || got[0].EndNumber != 2 { t.Fatalf("yielded = %+v", got) }
	if !errors.Is(h.c.StreamErr(), stream.ErrConnectionUnavailable) { t.Fatalf("StreamErr = %v", h.c.StreamErr()) }

	end, _ := h.c.CurrentEndNumber()
	shot, _ := h.c.CurrentShotNumber()
	first, second, _ := h.c.CurrentScore()
	next, _ := h.c.NextTeamToMove()
	if end != 2 || shot != 19 || first != 1 || second != 2 || next != match.Team1 {
		t.Fatalf("reads: end=%d shot=%d score=%d-%d next=%s", end, shot, first, second, next)
	}
	team0, team1, _ := h.c.StoneCoordinates()
	if len(team0) != 1 || len(team1) != 0 { t.Fatalf("stones = %v / %v", team0, team1) }
	if w, err := h.c.Winner(); err != nil || w != nil { t.Fatalf("winner = %v, %v", w, err) }
	if mv, err := h.c.LastMove(); err != nil || mv.Empty() { t.Fatalf("last move = %v, %v", mv, err) }

	sinkM.Lock()
	n := len(sunk)
	sinkM.Unlock()
	if n != 1 { t.Fatalf("sink saw %d snapshots", n) }
	if h.logs.FilterMessage("stream_state_update").Len() != 1 || h.logs.FilterMessage("stream_unavailable").Len() != 1 {
		t.Fatalf("logs = %v", h.logs.All())
	}
	if h.logs.FilterMessage("stream_restart").Len() != 0 { t.Fatalf("unavailable must not restart") }
	if n := h.logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Fatalf("one drop should log one error, got %d: %v", n, h.logs.All())
	}
}

func TestStreamRestartsOnceAfterExhaustion(t *testing.T) {
	h := newHarness(t, "pw0", func(o *Options) {
		p := testPolicy()
		p.MaxConsecutiveFailures = 1
		o.Policy = p
	})
	h.srv.SetResponse(fakeserver.RouteStream, http.StatusServiceUnavailable, "down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range h.c.Stream(ctx) {
		t.Fatalf("nothing should be yielded")
	}

	if !errors.Is(h.c.StreamErr(), stream.ErrRetriesExhausted) { t.Fatalf("StreamErr = %v", h.c.StreamErr()) }
	if n := len(h.srv.RequestsTo(fakeserver.RouteStream)); n != 4 { t.Fatalf("expected 4 handshakes over two readers, got %d", n) }
	if h.logs.FilterMessage("stream_restart").Len() != 1 || h.logs.FilterMessage("stream_closed").Len() != 1 {
		t.Fatalf("logs = %v", h.logs.All())
	}
	if n := h.logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 { t.Fatalf("error entries = %d", n) }
}

func TestStreamDefaultPolicyNeverRestarts(t *testing.T) {
	h := newHarness(t, "pw0", func(o *Options) { o.Policy = stream.Policy{} })
	h.srv.SetResponse(fakeserver.RouteStream, http.StatusServiceUnavailable, "down")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	for range h.c.Stream(ctx) {
		t.Fatalf("nothing should be yielded")
	}

	if !errors.Is(h.c.StreamErr(), context.DeadlineExceeded) { t.Fatalf("StreamErr = %v", h.c.StreamErr()) }
	if n := len(h.srv.RequestsTo(fakeserver.RouteStream)); n <= 2 { t.Fatalf("expected retries past one failure budget, got %d", n) }
	if h.logs.FilterMessage("stream_restart").Len() != 0 { t.Fatalf("default policy must not restart: %v", h.logs.All()) }
}

func TestStreamConsumerBreakStopsCleanly(t *testing.T) {
	h := newHarness(t, "pw0", nil)
	h.srv.Push(sse.Event{Type: match.EventLatestStateUpdate, Data: snapshotJSON})
	h.srv.Push(sse.Event{Type: match.EventLatestStateUpdate, Data: snapshotJSON})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	for range h.c.Stream(ctx) {
		n++
		break
	}
	if n != 1 || h.c.StreamErr() != nil { t.Fatalf("n=%d err=%v", n, h.c.StreamErr()) }
}
