package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	appcfg "github.com/park285/dc-curling-client/internal/config"
	"github.com/park285/dc-curling-client/internal/matchmaker"
	"github.com/park285/dc-curling-client/internal/obslog"
)

// Creates a match from the setting file and writes its id for the clients.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	setup, err := appcfg.LoadMatchSetup(cfg.MatchSettingFile)
	if err != nil {
		log.Fatalf("setting error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()
	mm := matchmaker.New(cfg.BaseURL, cfg.Username, cfg.Password, cfg.HTTPTimeout, logger)
	id, err := mm.CreateMatch(ctx, setup)
	if err != nil {
		log.Fatalf("create match failed: %v", err)
	}
	if err := appcfg.WriteMatchID(cfg.MatchIDFile, id); err != nil {
		log.Fatalf("write match id: %v", err)
	}
	logger.Info("match_id_written", zap.String("path", cfg.MatchIDFile), zap.String("match_id", id.String()))
}
