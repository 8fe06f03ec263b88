package verify

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/krigga/flappy-ton/internal/game"
)

// BatchRequest verifies many runs under one tuning.
type BatchRequest struct {
	Runs      []Request `json:"runs"`
	TimeoutMs int       `json:"timeout_ms,omitempty"`
}

// Outcome is the verification of one run in a batch. Error is set instead of
// Check when the run could not be replayed.
type Outcome struct {
	Index int    `json:"index"`
	Check *Check `json:"check,omitempty"`
	Error string `json:"error,omitempty"`
}

// Summary aggregates a batch.
type Summary struct {
	Total    int  `json:"total"`
	Valid    int  `json:"valid"`
	Invalid  int  `json:"invalid"`
	Failed   int  `json:"failed"`
	TimedOut bool `json:"timed_out,omitempty"`
}

// BatchResult holds per-run outcomes in request order.
type BatchResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Summary  Summary   `json:"summary"`
}

// Verifier replays runs in parallel.
type Verifier struct {
	tuning      game.Tuning
	workerCount int
}

// NewVerifier sizes the worker pool to GOMAXPROCS.
func NewVerifier(t game.Tuning) *Verifier {
	return &Verifier{tuning: t, workerCount: runtime.GOMAXPROCS(0)}
}

// Tuning returns the constants replays run under.
func (v *Verifier) Tuning() game.Tuning { return v.tuning }

// Verify checks a single run.
func (v *Verifier) Verify(req Request) (Check, error) {
	return CheckClaim(v.tuning, req)
}

// VerifyBatch replays every run. Runs not started before the deadline are
// left out of the summary and flagged as timed out.
func (v *Verifier) VerifyBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	outcomes := make([]Outcome, len(req.Runs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workerCount)
	for i := range req.Runs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i].Index = i
			c, err := CheckClaim(v.tuning, req.Runs[i])
			if err != nil {
				outcomes[i].Error = err.Error()
			} else {
				outcomes[i].Check = &c
			}
			done.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &BatchResult{Outcomes: make([]Outcome, 0, len(req.Runs))}
	res.Summary.Total = len(req.Runs)
	for i := range outcomes {
		o := outcomes[i]
		switch {
		case o.Check == nil && o.Error == "":
			continue
		case o.Error != "":
			res.Summary.Failed++
		case o.Check.Valid:
			res.Summary.Valid++
		default:
			res.Summary.Invalid++
		}
		res.Outcomes = append(res.Outcomes, o)
	}
	res.Summary.TimedOut = int(done.Load()) < len(req.Runs)
	return res, nil
}
