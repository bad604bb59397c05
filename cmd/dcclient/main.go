package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/park285/dc-curling-client/internal/config"
	"github.com/park285/dc-curling-client/internal/dcclient"
	"github.com/park285/dc-curling-client/internal/match"
	"github.com/park285/dc-curling-client/internal/obslog"
	"github.com/park285/dc-curling-client/internal/statecache"
	"github.com/park285/dc-curling-client/internal/statestore"
	"github.com/park285/dc-curling-client/internal/stream"
)

func main() {
	velocity := flag.Float64("velocity", 2.371, "translational velocity of every shot")
	angleDeg := flag.Float64("angle", 91.7, "shot angle in degrees, 0 on +x, counter-clockwise")
	rotation := flag.String("rotation", match.RotationCW, "curl: cw or ccw")
	placement := flag.String("placement", "", "mixed doubles end setup to request (center_guard, center_house, pp_left, pp_right)")
	flag.Parse()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	matchID, err := cfg.ResolveMatchID()
	if err != nil {
		log.Fatalf("match id error: %v", err)
	}
	team, err := appcfg.LoadTeamConfig(cfg.TeamConfigFile)
	if err != nil {
		log.Fatalf("team config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := statestore.New()
	if cfg.RedisURL != "" {
		mirror, err := statecache.NewMirrorFromURL(ctx, cfg.RedisURL, statecache.WithLogger(logger))
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		defer mirror.Close()
		store.OnApply(mirror.Hook(matchID))
	}

	policy := stream.DefaultPolicy()
	policy.ReadTimeout = cfg.StreamReadTimeout
	client, err := dcclient.New(dcclient.Options{
		BaseURL:  cfg.BaseURL,
		MatchID:  matchID,
		Team:     cfg.ExpectedTeam,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.HTTPTimeout,
		Logger:   logger,
		Store:    store,
		Policy:   policy,
	})
	if err != nil {
		log.Fatalf("client init error: %v", err)
	}

	own, err := client.RegisterTeam(ctx, team)
	if err != nil {
		log.Fatalf("team registration failed: %v", err)
	}

	shot := match.ShotCommand{
		TranslationalVelocity: *velocity,
		ShotAngle:             *angleDeg * math.Pi / 180,
		AngularVelocity:       match.ShotFromVector(1, 0, *rotation).AngularVelocity,
	}
	setupEnd := -1
	for st := range client.Stream(ctx) {
		if st.Finished() {
			logger.Info("match_finished", zap.String("winner", st.Winner.String()),
				zap.Int("first_team_score", st.Score.FirstTeam), zap.Int("second_team_score", st.Score.SecondTeam))
			return
		}
		if st.NextShotTeam != own {
			continue
		}
		if *placement != "" && st.ShotNumber == 0 && setupEnd != st.EndNumber {
			setupEnd = st.EndNumber
			_ = client.SubmitStonePlacement(ctx, match.StonePlacement(*placement))
			continue
		}
		_ = client.SubmitShot(ctx, shot)
	}
	if err := client.StreamErr(); err != nil && ctx.Err() == nil {
		logger.Error("stream_ended", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
