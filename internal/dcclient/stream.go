package dcclient

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/sse"
	"github.com/park285/dc-curling-client/internal/stream"
)

// Stream follows the match and yields every authoritative snapshot after it
// has been applied to the store. When the subscription gives up after its
// retry budget, one fresh subscription is started; a dropped connection
// ends the sequence for good. StreamErr reports why it ended.
func (c *Client) Stream(ctx context.Context) iter.Seq[match.State] {
	return func(yield func(match.State) bool) {
		c.setStreamErr(nil)
		for restarted := false; ; restarted = true {
			r := stream.NewReader(c.source, c.store,
				stream.WithPolicy(c.policy),
				stream.WithSleeper(c.sleep),
				stream.WithObserver(&logObserver{log: c.log}),
			)
			stopped := false
			for st := range r.Events(ctx) {
				if !yield(st) {
					stopped = true
					break
				}
			}
			err := r.Err()
			c.setStreamErr(err)
			if stopped || err == nil || ctx.Err() != nil {
				return
			}
			if errors.Is(err, stream.ErrRetriesExhausted) && !restarted {
				c.log.Warn("stream_restart", zap.Error(err))
				continue
			}
			cause := stream.Classify(err)
			if cause == stream.CauseUnavailable {
				c.log.Error("stream_unavailable", zap.Error(err))
				return
			}
			c.log.Error("stream_closed", zap.String("cause", cause.String()), zap.Error(err))
			return
		}
	}
}

// StreamErr returns why the last Stream ended. It is nil while streaming and
// after the consumer stopped on its own.
func (c *Client) StreamErr() error {
	c.errM.Lock()
	defer c.errM.Unlock()
	return c.streamErr
}

func (c *Client) setStreamErr(err error) {
	c.errM.Lock()
	c.streamErr = err
	c.errM.Unlock()
}

// logObserver writes reader events to zap. State changes stay at debug;
// Stream logs the terminal outcome once.
type logObserver struct {
	log *zap.Logger
}

func (o *logObserver) Transition(from, to stream.State, cause stream.Cause, err error) {
	fields := []zap.Field{
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("cause", cause.String()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	o.log.Debug("stream_state", fields...)
}

func (o *logObserver) ConnectFailed(attempt int, err error) {
	o.log.Warn("stream_connect_failed", zap.Int("attempt", attempt), zap.Error(err))
}

func (o *logObserver) Backoff(cause stream.Cause, delay time.Duration, err error) {
	o.log.Warn("stream_backoff", zap.String("cause", cause.String()), zap.Duration("delay", delay), zap.Error(err))
}

func (o *logObserver) Snapshot(ev match.Event) {
	o.log.Debug("stream_snapshot",
		zap.String("event_id", ev.ID),
		zap.Int("end", ev.State.EndNumber),
		zap.Int("shot", ev.State.ShotNumber),
		zap.String("next_team", ev.State.NextShotTeam.String()),
	)
}

func (o *logObserver) Info(ev match.Event) {
	o.log.Info("stream_state_update",
		zap.String("event_id", ev.ID),
		zap.Int("end", ev.State.EndNumber),
		zap.Int("shot", ev.State.ShotNumber),
	)
}

func (o *logObserver) Ignored(ev match.Event) {
	o.log.Debug("stream_event_ignored", zap.String("type", ev.Type))
}

func (o *logObserver) DecodeError(raw sse.Event, err error) {
	o.log.Warn("stream_decode_error", zap.String("type", raw.Type), zap.Int("data_len", len(raw.Data)), zap.Error(err))
}
