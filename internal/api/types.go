package api

import (
	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/store"
	"github.com/krigga/flappy-ton/internal/verify"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidFrames = "invalid_frames"
	ErrTypeValidation    = "validation_error"

	ErrTypeRunNotFound = "run_not_found"
	ErrTypeReplay      = "replay_error"

	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory groups error types for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryReplay     ErrorCategory = "replay"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidFrames, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeRunNotFound, ErrTypeReplay:
		return CategoryReplay
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// TuningResponse exposes the constants replays run under.
type TuningResponse struct {
	Tuning        game.Tuning `json:"tuning"`
	EngineVersion string      `json:"engine_version"`
}

// VerifyResponse is the replay of a single run.
type VerifyResponse struct {
	Check         verify.Check `json:"check"`
	EngineVersion string       `json:"engine_version"`
}

// VerifyBatchResponse is the replay of many runs.
type VerifyBatchResponse struct {
	verify.BatchResult
	EngineVersion string `json:"engine_version"`
}

// SeedHashRequest represents a seed hashing request
type SeedHashRequest struct {
	ServerSeed string `json:"server_seed"`
}

// SeedHashResponse represents a seed hashing response
type SeedHashResponse struct {
	Hash          string `json:"hash"`
	EngineVersion string `json:"engine_version"`
}

// RunsResponse is a page of stored runs. Server seeds are never listed.
type RunsResponse struct {
	*store.RunsList
	EngineVersion string `json:"engine_version"`
}

// RunResponse is a stored run with its replay check.
type RunResponse struct {
	Run           store.Run     `json:"run"`
	Check         *verify.Check `json:"check,omitempty"`
	CheckError    string        `json:"check_error,omitempty"`
	EngineVersion string        `json:"engine_version"`
}
