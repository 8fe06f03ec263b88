package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/krigga/flappy-ton/internal/config"
	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/sim"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (default .env)")
	server := flag.String("server", "", "server seed")
	client := flag.String("client", "", "client seed")
	from := flag.Uint64("from", 0, "first nonce")
	to := flag.Uint64("to", 99, "last nonce (inclusive)")
	script := flag.String("script", "", "autopilot script path (default built-in)")
	maxTicks := flag.Int("max-ticks", sim.DefaultMaxTicks, "ticks before a run is cut off")
	check := flag.Bool("verify", true, "replay every finished run")
	timeout := flag.Int("timeout-ms", 0, "stop starting runs after this long")
	asJSON := flag.Bool("json", false, "print every run as JSON")
	flag.Parse()

	logger := log.New(os.Stderr, "[SIM] ", log.LstdFlags)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	req := sim.Request{
		Seeds:      fairness.Seeds{Server: *server, Client: *client},
		NonceStart: *from,
		NonceEnd:   *to,
		MaxTicks:   *maxTicks,
		Verify:     *check,
		TimeoutMs:  *timeout,
	}
	if req.Seeds.Server == "" {
		if req.Seeds.Server, err = fairness.NewServerSeed(); err != nil {
			logger.Fatalf("server seed: %v", err)
		}
	}
	if req.Seeds.Client == "" {
		req.Seeds.Client = "flappy-sim"
	}
	if *script != "" {
		code, err := os.ReadFile(*script)
		if err != nil {
			logger.Fatalf("read script: %v", err)
		}
		req.Script = string(code)
	}

	logger.Printf("simulating nonces=%d..%d server_hash=%s client=%s", req.NonceStart, req.NonceEnd, fairness.HashServerSeed(req.Seeds.Server), req.Seeds.Client)
	res, err := sim.New(cfg.Tuning).Simulate(context.Background(), req)
	if err != nil {
		logger.Fatalf("simulate: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Fatalf("encode: %v", err)
		}
		return
	}

	s := res.Summary
	fmt.Printf("runs:      %d\n", s.Total)
	fmt.Printf("best:      %d\n", s.Best)
	fmt.Printf("mean:      %.2f\n", s.Mean)
	fmt.Printf("truncated: %d\n", s.Truncated)
	fmt.Printf("failed:    %d\n", s.Failed)
	fmt.Printf("mismatch:  %d\n", s.Mismatch)
	if s.TimedOut {
		fmt.Println("timed out before every nonce was played")
	}
	if s.Failed > 0 || s.Mismatch > 0 {
		os.Exit(1)
	}
}
