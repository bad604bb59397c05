// Package matchmaker asks the server to create a match and returns its id.
package matchmaker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dc-curling-client/internal/dcfast"
	"github.com/park285/dc-curling-client/internal/match"
)

type Client struct {
	http *dcfast.Client
	log  *zap.Logger
}

func New(baseURL, username, password string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: dcfast.NewClient(baseURL, dcfast.WithBasicAuth(username, password), dcfast.WithTimeout(timeout)),
		log:  log,
	}
}

// CreateMatch posts the setting and returns the id of the new match.
func (c *Client) CreateMatch(ctx context.Context, setup match.MatchSetup) (match.MatchID, error) {
	out, err := c.http.Post(ctx, "/matches", nil, setup)
	if err != nil {
		if errors.Is(err, dcfast.ErrConnectionUnavailable) {
			c.log.Error("match_create_unavailable", zap.Error(err))
		} else {
			c.log.Error("match_create_error", zap.Error(err))
		}
		return match.MatchID{}, err
	}

	switch out.Kind() {
	case dcfast.KindOK:
		id, perr := match.ParseMatchID(out.Text())
		if perr != nil {
			c.log.Error("match_create_bad_body", zap.String("body", out.String()), zap.Error(perr))
			return match.MatchID{}, perr
		}
		c.log.Info("match_create_ok", zap.String("match_id", id.String()))
		return id, nil
	case dcfast.KindAuth:
		c.log.Error("match_create_unauthorized", zap.Int("status", out.Status), zap.String("body", out.String()))
	case dcfast.KindValidation:
		c.log.Error("match_create_invalid", zap.Int("status", out.Status), zap.String("body", out.String()))
	default:
		c.log.Error("match_create_error", zap.Int("status", out.Status), zap.String("body", out.String()))
	}
	return match.MatchID{}, out.Err("create match")
}
