package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/dc-curling-client/internal/config"
	"github.com/park285/dc-curling-client/internal/dcclient"
	"github.com/park285/dc-curling-client/internal/msgcat"
	"github.com/park285/dc-curling-client/internal/stream"
)

// Follows a match's stream for a short window without registering, and
// prints each snapshot.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	matchID, err := cfg.ResolveMatchID()
	if err != nil {
		log.Fatalf("match id error: %v", err)
	}

	window := 10 * time.Second
	if v := os.Getenv("STREAMCHECK_WINDOW_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			window = time.Duration(n) * time.Second
		}
	}

	cat, err := msgcat.New(os.Getenv("MESSAGES_DIR"))
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	logger, _ := zap.NewDevelopment()
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
		Policy:   policy,
	})
	if err != nil {
		log.Fatalf("client init error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	n := 0
	for st := range client.Stream(ctx) {
		n++
		fmt.Println(cat.Line("snapshot.line", st))
		if st.Finished() {
			fmt.Println(cat.Line("match.winner", map[string]any{
				"Winner": st.Winner.String(), "First": st.Score.FirstTeam, "Second": st.Score.SecondTeam,
			}))
			break
		}
	}
	if err := client.StreamErr(); err != nil {
		fmt.Println(cat.Line("stream.ended", map[string]any{"Err": err}))
	}
	fmt.Println(cat.Line("stream.summary", map[string]any{"Count": n, "Window": window}))
}
