package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krigga/flappy-ton/internal/game"
)

// ErrNotFound is returned when a run or setting does not exist.
var ErrNotFound = errors.New("store: not found")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate() error
	SaveRun(run *Run) error
	UpdateRunResult(id string, res RunResult) error
	GetRun(id string) (*Run, error)
	ListRuns(query RunsQuery) (*RunsList, error)
	BestScore() (int, error)
	SaveFrames(runID string, frames []game.Frame) error
	GetFrames(runID string) ([]game.Frame, error)
	DeleteFrames(runID string) error
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// RunsQuery represents query parameters for listing runs
type RunsQuery struct {
	SubmittedOnly bool `json:"submittedOnly,omitempty"`
	Page          int  `json:"page"`
	PerPage       int  `json:"perPage"`
}

// RunsList represents paginated runs response
type RunsList struct {
	Runs       []Run `json:"runs"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}

// Run is one finished game, with the seeds needed to replay it.
type Run struct {
	ID             string              `json:"id" db:"id"`
	Score          int                 `json:"score" db:"score"`
	Ticks          int                 `json:"ticks" db:"ticks"`
	Cause          string              `json:"cause" db:"cause"`
	ServerSeed     string              `json:"server_seed,omitempty" db:"server_seed"`
	ServerSeedHash string              `json:"server_seed_hash" db:"server_seed_hash"`
	ClientSeed     string              `json:"client_seed" db:"client_seed"`
	Nonce          uint64              `json:"nonce" db:"nonce"`
	Skin           string              `json:"skin" db:"skin"`
	Submitted      bool                `json:"submitted" db:"submitted"`
	Reward         decimal.NullDecimal `json:"reward" db:"reward"`
	Achievements   []string            `json:"achievements" db:"achievements"`
	SubmitError    string              `json:"submit_error,omitempty" db:"submit_error"`
	EngineVersion  string              `json:"engine_version" db:"engine_version"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
}

// RunResult is the backend's answer for a run. Err is set when submission failed.
type RunResult struct {
	Reward       decimal.NullDecimal
	Achievements []string
	Err          string
}

// Setting keys.
const (
	SettingChosenSkin = "chosen-pipe"
	SettingServerSeed = "server-seed"
	SettingClientSeed = "client-seed"
	SettingNextNonce  = "next-nonce"
)
