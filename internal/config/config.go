// Package config loads runtime settings for the game client and the
// verification service. Values are layered: built-in defaults, then a .env
// file, then an optional YAML file, then FLAPPY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/krigga/flappy-ton/internal/backend"
	"github.com/krigga/flappy-ton/internal/game"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	appConfigDirName = "flappy-ton"
	dbFileName       = "flappy.db"
)

// Environment variables read by Load.
const (
	VarConfigFile      = "FLAPPY_CONFIG"
	VarEnv             = "FLAPPY_ENV"
	VarEndpoint        = "FLAPPY_ENDPOINT"
	VarListenAddr      = "FLAPPY_LISTEN_ADDR"
	VarDataDir         = "FLAPPY_DATA_DIR"
	VarProfile         = "FLAPPY_PROFILE"
	VarAutopilot       = "FLAPPY_AUTOPILOT"
	VarMaxRetries      = "FLAPPY_MAX_RETRIES"
	VarShopInterval    = "FLAPPY_SHOP_INTERVAL"
	VarBalanceInterval = "FLAPPY_BALANCE_INTERVAL"
	VarDevAddress      = "FLAPPY_DEV_ADDRESS"
	VarDevBalance      = "FLAPPY_DEV_BALANCE"
)

// Config is the full runtime configuration.
type Config struct {
	Env            string      `yaml:"env"`
	Endpoint       string      `yaml:"endpoint"` // empty picks the deployment for Env
	ListenAddr     string      `yaml:"listen_addr"`
	DataDir        string      `yaml:"data_dir"`
	KeyringService string      `yaml:"keyring_service"`
	Profile        string      `yaml:"profile"`
	Autopilot      string      `yaml:"autopilot"` // path to a script, "default" for the built-in one
	MaxRetries     uint64      `yaml:"max_retries"`
	Tuning         game.Tuning `yaml:"tuning"`
	Poll           Poll        `yaml:"poll"`
	DevWallet      DevWallet   `yaml:"dev_wallet"`
}

// Poll sets the background refresh intervals.
type Poll struct {
	Shop    time.Duration `yaml:"shop"`
	Balance time.Duration `yaml:"balance"`
}

// DevWallet configures the offline wallet used when no connector is linked.
type DevWallet struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:            EnvProd,
		ListenAddr:     "127.0.0.1:8077",
		DataDir:        appDataDir(),
		KeyringService: "flappy-ton",
		Profile:        "default",
		MaxRetries:     3,
		Tuning:         game.DefaultTuning(),
		Poll: Poll{
			Shop:    10 * time.Second,
			Balance: 10 * time.Second,
		},
		DevWallet: DevWallet{Address: "EQdev", Balance: "10"},
	}
}

// Load builds the configuration. envFile may be empty; a missing .env file
// is not an error.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv(VarConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = EndpointFor(cfg.Env)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EndpointFor returns the backend deployment for env.
func EndpointFor(env string) string {
	if env == EnvDev {
		return backend.DevEndpoint
	}
	return backend.ProdEndpoint
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	log.Printf("config: loaded %s", path)
	return nil
}

func (c *Config) mergeEnv() error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	str(VarEnv, &c.Env)
	str(VarEndpoint, &c.Endpoint)
	str(VarListenAddr, &c.ListenAddr)
	str(VarDataDir, &c.DataDir)
	str(VarProfile, &c.Profile)
	str(VarAutopilot, &c.Autopilot)
	str(VarDevAddress, &c.DevWallet.Address)
	str(VarDevBalance, &c.DevWallet.Balance)

	if v := os.Getenv(VarMaxRetries); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("config: %s: %w", VarMaxRetries, err)
		}
		c.MaxRetries = n
	}
	for name, dst := range map[string]*time.Duration{
		VarShopInterval:    &c.Poll.Shop,
		VarBalanceInterval: &c.Poll.Balance,
	} {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", name, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Env != EnvDev && c.Env != EnvProd {
		return fmt.Errorf("config: env must be %q or %q, got %q", EnvDev, EnvProd, c.Env)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.Poll.Shop <= 0 || c.Poll.Balance <= 0 {
		return fmt.Errorf("config: poll intervals must be positive")
	}
	if err := c.Tuning.Validate(); err != nil {
		return fmt.Errorf("config: tuning: %w", err)
	}
	return nil
}

// DBPath is the run history database inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// SessionFallbackPath is the JSON file used when no system keyring exists.
func (c Config) SessionFallbackPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// appDataDir returns an OS-appropriate writable directory.
func appDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
