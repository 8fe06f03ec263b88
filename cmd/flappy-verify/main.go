package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krigga/flappy-ton/internal/api"
	"github.com/krigga/flappy-ton/internal/config"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/verify"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (default .env)")
	addr := flag.String("addr", "", "listen address (overrides FLAPPY_LISTEN_ADDR)")
	withDB := flag.Bool("db", true, "serve stored runs from the local database")
	flag.Parse()

	logger := log.New(os.Stdout, "[API] ", log.LstdFlags)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	var db store.DB
	if *withDB {
		sqlite, err := store.NewSQLiteDB(cfg.DBPath())
		if err != nil {
			logger.Fatalf("open db: %v", err)
		}
		defer sqlite.Close()
		if err := sqlite.Migrate(); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		db = sqlite
	}

	server := api.NewServerWithLogger(db, verify.NewVerifier(cfg.Tuning), logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening addr=%s version=%s commit=%s", cfg.ListenAddr, api.EngineVersion, api.GitCommit)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	case <-ctx.Done():
		logger.Printf("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown_failed error=%v", err)
		}
	}
}
