// Package statecache mirrors the latest snapshot of a match to Redis so
// other processes can read it. Only the current snapshot is kept.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/statestore"
)

const (
	defaultTTL     = 24 * time.Hour
	defaultTimeout = 2 * time.Second
)

type Mirror struct {
	rdb     *redis.Client
	log     *zap.Logger
	ttl     time.Duration
	timeout time.Duration
}

type Option func(*Mirror)

func WithTTL(d time.Duration) Option { return func(m *Mirror) { m.ttl = d } }

// WithTimeout bounds each write done from a store hook.
func WithTimeout(d time.Duration) Option { return func(m *Mirror) { m.timeout = d } }

func WithLogger(l *zap.Logger) Option { return func(m *Mirror) { m.log = l } }

func NewMirror(rdb *redis.Client, opts ...Option) *Mirror {
	m := &Mirror{rdb: rdb, log: zap.NewNop(), ttl: defaultTTL, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// NewMirrorFromURL connects with a redis:// URL and checks the connection.
func NewMirrorFromURL(ctx context.Context, url string, opts ...Option) (*Mirror, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewMirror(rdb, opts...), nil
}

func (m *Mirror) Close() error { return m.rdb.Close() }

func keyLatest(id match.MatchID) string  { return "dc:match:" + id.String() + ":latest" }
func keyUpdates(id match.MatchID) string { return "dc:match:" + id.String() + ":updates" }

// Publish replaces the stored snapshot of id and notifies subscribers of
// the updates channel with the same payload.
func (m *Mirror) Publish(ctx context.Context, id match.MatchID, st match.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, keyLatest(id), raw, m.ttl)
	pipe.Publish(ctx, keyUpdates(id), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}

// Load returns the mirrored snapshot, or nil when there is none.
func (m *Mirror) Load(ctx context.Context, id match.MatchID) (*match.State, error) {
	raw, err := m.rdb.Get(ctx, keyLatest(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := match.DecodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("decode mirrored snapshot: %w", err)
	}
	return &st, nil
}

// Subscribe returns a subscription to the updates channel of id. Messages
// carry the snapshot JSON; decode them with match.DecodeState.
func (m *Mirror) Subscribe(ctx context.Context, id match.MatchID) *redis.PubSub {
	return m.rdb.Subscribe(ctx, keyUpdates(id))
}

// Hook returns a store hook that mirrors every applied snapshot of id.
// Failures are logged and do not reach the stream.
func (m *Mirror) Hook(id match.MatchID) statestore.ApplyHook {
	return func(st match.State) {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.Publish(ctx, id, st); err != nil {
			m.log.Warn("state_mirror_error", zap.String("match_id", id.String()), zap.Error(err))
		}
	}
}
