// Package sim plays headless autopilot runs over a nonce range and checks
// each recorded run with the replay verifier.
package sim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/game"
	"github.com/krigga/flappy-ton/internal/scripting"
	"github.com/krigga/flappy-ton/internal/verify"
)

// DefaultMaxTicks stops a run that the autopilot keeps alive.
const DefaultMaxTicks = 20000

// Request describes a simulation.
type Request struct {
	Seeds      fairness.Seeds
	NonceStart uint64
	NonceEnd   uint64 // inclusive
	Script     string
	MaxTicks   int
	Verify     bool
	TimeoutMs  int
	Workers    int
}

// Run is one simulated run.
type Run struct {
	Nonce     uint64     `json:"nonce"`
	Score     int        `json:"score"`
	Ticks     int        `json:"ticks"`
	Cause     game.Cause `json:"cause,omitempty"`
	Truncated bool       `json:"truncated,omitempty"`
	Verified  *bool      `json:"verified,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Summary aggregates a simulation.
type Summary struct {
	Total     int     `json:"total"`
	Truncated int     `json:"truncated"`
	Failed    int     `json:"failed"`
	Mismatch  int     `json:"mismatch"`
	Best      int     `json:"best"`
	Mean      float64 `json:"mean"`
	TimedOut  bool    `json:"timed_out,omitempty"`
}

// Result holds runs ordered by nonce.
type Result struct {
	Runs    []Run   `json:"runs"`
	Summary Summary `json:"summary"`
}

// Simulator runs autopilot games in parallel. Each worker compiles its own
// script since a goja runtime is not safe for concurrent use.
type Simulator struct {
	tuning game.Tuning
}

// New returns a simulator for the given tuning.
func New(t game.Tuning) *Simulator {
	return &Simulator{tuning: t}
}

// Simulate plays every nonce in the range. Nonces not started before the
// deadline are left out and the summary is flagged as timed out.
func (s *Simulator) Simulate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Seeds.Validate(); err != nil {
		return nil, err
	}
	if req.NonceEnd < req.NonceStart {
		return nil, errors.New("sim: nonce_end must be >= nonce_start")
	}
	if req.Script == "" {
		req.Script = scripting.DefaultScript
	}
	if _, err := scripting.NewAutopilot(req.Script); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if req.MaxTicks <= 0 {
		req.MaxTicks = DefaultMaxTicks
	}
	if req.Workers <= 0 {
		req.Workers = runtime.GOMAXPROCS(0)
	}
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	nonces := make(chan uint64)
	runs := make(chan Run)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(nonces)
		for n := req.NonceStart; ; n++ {
			select {
			case nonces <- n:
			case <-gctx.Done():
				return nil
			}
			if n == req.NonceEnd {
				return nil
			}
		}
	})

	var workers errgroup.Group
	for range req.Workers {
		workers.Go(func() error {
			for n := range nonces {
				runs <- s.play(req, n)
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(runs)
	}()

	res := &Result{}
	for r := range runs {
		res.Runs = append(res.Runs, r)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(res.Runs, func(i, j int) bool { return res.Runs[i].Nonce < res.Runs[j].Nonce })

	res.Summary = summarize(res.Runs)
	res.Summary.TimedOut = uint64(len(res.Runs)) < req.NonceEnd-req.NonceStart+1
	return res, nil
}

func (s *Simulator) play(req Request, nonce uint64) Run {
	out := Run{Nonce: nonce}
	pilot, err := scripting.NewAutopilot(req.Script)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	loop, err := game.NewLoop(s.tuning, nil, nil)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	loop.SetRandFactory(func(uuid.UUID) game.Rand {
		return fairness.NewByteStream(req.Seeds, nonce, 0)
	})
	rec := &frames{}
	loop.SetRecorder(rec)

	var ended *game.RunEnded
	loop.Subscribe(func(ev game.RunEnded) { ended = &ev })
	if err := loop.Start(); err != nil {
		out.Error = err.Error()
		return out
	}

	for loop.State() == game.StateRunning && len(rec.list) < req.MaxTicks {
		if err := pilot.Step(loop); err != nil {
			out.Error = err.Error()
			break
		}
		loop.Tick(1)
	}

	out.Score = loop.Score()
	out.Ticks = len(rec.list)
	if ended == nil {
		out.Truncated = out.Error == ""
		return out
	}
	out.Cause = ended.Cause

	if req.Verify {
		score := ended.Score
		check, err := verify.CheckClaim(s.tuning, verify.Request{
			Seeds:        req.Seeds,
			Nonce:        nonce,
			Frames:       rec.list,
			ClaimedScore: &score,
		})
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Verified = &check.Valid
	}
	return out
}

func summarize(runs []Run) Summary {
	sum := Summary{Total: len(runs)}
	var total int
	for _, r := range runs {
		total += r.Score
		sum.Best = max(sum.Best, r.Score)
		switch {
		case r.Error != "":
			sum.Failed++
		case r.Truncated:
			sum.Truncated++
		case r.Verified != nil && !*r.Verified:
			sum.Mismatch++
		}
	}
	if len(runs) > 0 {
		sum.Mean = float64(total) / float64(len(runs))
	}
	return sum
}

// frames collects a single run's input. The loop calls it from the goroutine
// that ticks, so no locking is needed.
type frames struct {
	list []game.Frame
}

func (f *frames) RecordFrame(_ uuid.UUID, fr game.Frame) {
	f.list = append(f.list, fr)
}
