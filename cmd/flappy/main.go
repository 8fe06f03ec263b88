package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/shopspring/decimal"

	"github.com/krigga/flappy-ton/internal/api"
	"github.com/krigga/flappy-ton/internal/app"
	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/config"
	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/render"
	"github.com/krigga/flappy-ton/internal/scene"
	"github.com/krigga/flappy-ton/internal/scripting"
	"github.com/krigga/flappy-ton/internal/shop"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/wallet"
)

func main() {
	envFile := flag.String("env", "", "path to a .env file (default .env)")
	autopilot := flag.String("autopilot", "", `autopilot script path, or "default"`)
	scale := flag.Int("scale", 1, "window scale factor")
	flag.Parse()

	if err := run(*envFile, *autopilot, *scale); err != nil {
		log.Fatalf("flappy: %v", err)
	}
}

func run(envFile, autopilotFlag string, scale int) error {
	logger := log.New(os.Stdout, "[APP] ", log.LstdFlags)

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if autopilotFlag != "" {
		cfg.Autopilot = autopilotFlag
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logger.Printf("starting version=%s env=%s endpoint=%s data_dir=%s", api.EngineVersion, cfg.Env, cfg.Endpoint, cfg.DataDir)

	db, err := store.NewSQLiteDB(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	client := backend.NewClient(backend.Config{Endpoint: cfg.Endpoint, MaxRetries: cfg.MaxRetries})
	sessions := wallet.NewSessionStore(cfg.KeyringService, cfg.SessionFallbackPath())

	devBalance, err := decimal.NewFromString(cfg.DevWallet.Balance)
	if err != nil {
		return fmt.Errorf("dev wallet balance: %w", err)
	}
	connector := wallet.NewDevConnector(cfg.DevWallet.Address, devBalance, logger)

	var userID int64
	if sess, err := sessions.Load(cfg.Profile); err == nil {
		if id, err := sess.UserID(); err == nil {
			userID = id
		}
	}

	skins := shop.New(shop.Config{
		Catalog:   shop.DefaultCatalog(),
		Settings:  db,
		Purchases: client,
		Purchaser: &shop.WalletPurchaser{
			Connector: connector,
			Remote:    client,
			Wallets:   connector,
			UserID:    userID,
			Logger:    logger,
		},
		ReloadInterval: cfg.Poll.Shop,
		Logger:         logger,
	})
	balance := shop.NewBalanceWatcher(connector, cfg.Poll.Balance, logger)

	sc := scene.New(cfg.Tuning)
	loop, err := game.NewLoop(cfg.Tuning, sc, skins)
	if err != nil {
		return err
	}

	a, err := app.New(app.Deps{
		Loop:      loop,
		DB:        db,
		Recorder:  store.NewFrameRecorder(db, 0, logger),
		Submitter: client,
		Sessions:  sessions,
		Profile:   cfg.Profile,
		Connector: connector,
		Shop:      skins,
		Balance:   balance,
		Version:   api.EngineVersion,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	var pilot *scripting.Autopilot
	if cfg.Autopilot != "" {
		pilot, err = loadAutopilot(cfg.Autopilot)
		if err != nil {
			return err
		}
		logger.Printf("autopilot_loaded source=%s", cfg.Autopilot)
	}

	go func() {
		if _, err := client.Config(context.Background()); err != nil {
			logger.Printf("remote_config_failed error=%v", err)
		}
	}()

	ebiten.SetWindowSize(int(cfg.Tuning.WorldWidth)*scale, int(cfg.Tuning.WorldHeight)*scale)
	ebiten.SetWindowTitle("Flappy TON")
	return ebiten.RunGame(render.New(render.Options{
		Loop:      loop,
		Scene:     sc,
		App:       a,
		Shop:      skins,
		Balance:   balance,
		Autopilot: pilot,
		Logger:    logger,
	}))
}

func loadAutopilot(source string) (*scripting.Autopilot, error) {
	if source == "default" {
		return scripting.NewAutopilot(scripting.DefaultScript)
	}
	code, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read autopilot script: %w", err)
	}
	return scripting.NewAutopilot(string(code))
}
