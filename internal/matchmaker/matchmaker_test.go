package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/dc-curling-client/internal/dcfast"
	"github.com/park285/dc-curling-client/internal/fakeserver"
	"github.com/park285/dc-curling-client/internal/match"
)

func TestCreateMatchReturnsID(t *testing.T) {
	srv := fakeserver.New("user0", "pw0")
	defer srv.Close()
	core, logs := observer.New(zapcore.InfoLevel)
	c := New(srv.URL, "user0", "pw0", time.Second, zap.New(core))

	setup := match.MatchSetup{StandardEndCount: 8, Simulator: "fcv1", Extra: map[string]any{"tournament": map[string]any{"name": "local"}}}
	id, err := c.CreateMatch(context.Background(), setup)
	if err != nil { t.Fatalf("CreateMatch: %v", err) }
	if id.String() != "0b6f2f0e-7d5c-4b8e-9a55-3f0f6f3c9b1a" { t.Fatalf("id = %s", id) }

	reqs := srv.RequestsTo(fakeserver.RouteCreate)
	if len(reqs) != 1 { t.Fatalf("expected 1 request, got %d", len(reqs)) }
	var body map[string]any
	if err := json.Unmarshal(reqs[0].Body, &body); err != nil { t.Fatalf("body: %v", err) }
	if body["standard_end_count"] != float64(8) || body["tournament"] == nil { t.Fatalf("body = %s", reqs[0].Body) }
	if logs.FilterMessage("match_create_ok").Len() != 1 { t.Fatalf("logs = %v", logs.All()) }
}

func TestCreateMatchFailures(t *testing.T) {
	srv := fakeserver.New("user0", "pw0")
	defer srv.Close()
	core, logs := observer.New(zapcore.InfoLevel)

	bad := New(srv.URL, "user0", "nope", time.Second, zap.New(core))
	if _, err := bad.CreateMatch(context.Background(), match.MatchSetup{}); !errors.Is(err, dcfast.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	c := New(srv.URL, "user0", "pw0", time.Second, zap.New(core))
	srv.SetResponse(fakeserver.RouteCreate, http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","time_limit"]}]}`)
	if _, err := c.CreateMatch(context.Background(), match.MatchSetup{}); !errors.Is(err, dcfast.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	srv.SetResponse(fakeserver.RouteCreate, http.StatusOK, `"not-a-uuid"`)
	if _, err := c.CreateMatch(context.Background(), match.MatchSetup{}); err == nil { t.Fatalf("expected a parse error") }

	srv.DropNext(fakeserver.RouteCreate, 1)
	if _, err := c.CreateMatch(context.Background(), match.MatchSetup{}); !errors.Is(err, dcfast.ErrConnectionUnavailable) {
		t.Fatalf("expected ErrConnectionUnavailable, got %v", err)
	}

	for _, msg := range []string{"match_create_unauthorized", "match_create_invalid", "match_create_bad_body", "match_create_unavailable"} {
		if logs.FilterMessage(msg).Len() != 1 { t.Fatalf("%s: logs = %v", msg, logs.All()) }
	}
}
