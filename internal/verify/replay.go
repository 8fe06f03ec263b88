// Package verify replays recorded runs headlessly and checks claimed scores.
package verify

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/game"
)

// MaxDelta is the largest per-frame delta a replay accepts.
const MaxDelta = 10.0

var (
	ErrNoFrames      = errors.New("verify: no frames")
	ErrFrameOrder    = errors.New("verify: frames out of order")
	ErrFrameDelta    = errors.New("verify: frame delta out of range")
	ErrFramesTrailed = errors.New("verify: frames recorded after the run ended")
)

// Request describes a recorded run.
type Request struct {
	Seeds        fairness.Seeds `json:"seeds"`
	Nonce        uint64         `json:"nonce"`
	Frames       []game.Frame   `json:"frames"`
	ClaimedScore *int           `json:"claimedScore,omitempty"`
}

// Result is the replayed outcome of a run.
type Result struct {
	Score      int        `json:"score"`
	Ticks      int        `json:"ticks"`
	Cause      game.Cause `json:"cause"`
	Terminated bool       `json:"terminated"`
	Spawned    int        `json:"spawned"`
}

// Check compares a claimed score with the replay.
type Check struct {
	Result
	Claimed int  `json:"claimed"`
	Valid   bool `json:"valid"`
}

// Replay re-runs frames under the seeded randomness of (seeds, nonce).
func Replay(t game.Tuning, req Request) (Result, error) {
	if err := req.Seeds.Validate(); err != nil {
		return Result{}, err
	}
	if len(req.Frames) == 0 {
		return Result{}, ErrNoFrames
	}

	loop, err := game.NewLoop(t, nil, nil)
	if err != nil {
		return Result{}, fmt.Errorf("verify: %w", err)
	}
	loop.SetRandFactory(func(uuid.UUID) game.Rand {
		return fairness.NewByteStream(req.Seeds, req.Nonce, 0)
	})
	if err := loop.Start(); err != nil {
		return Result{}, fmt.Errorf("verify: %w", err)
	}

	var ended *game.RunEnded
	loop.Subscribe(func(ev game.RunEnded) { ended = &ev })

	for i, f := range req.Frames {
		if f.Tick != i+1 {
			return Result{}, fmt.Errorf("%w: frame %d has tick %d", ErrFrameOrder, i, f.Tick)
		}
		if f.Delta <= 0 || f.Delta > MaxDelta {
			return Result{}, fmt.Errorf("%w: frame %d has delta %g", ErrFrameDelta, i, f.Delta)
		}
		if ended != nil {
			return Result{}, fmt.Errorf("%w: %d extra", ErrFramesTrailed, len(req.Frames)-i)
		}
		if f.Jump {
			loop.RequestJump()
		}
		loop.Tick(f.Delta)
	}

	snap := loop.Snapshot()
	res := Result{
		Score:   snap.Run.Score,
		Ticks:   snap.Run.Ticks,
		Spawned: snap.Run.Spawned,
	}
	if ended != nil {
		res.Terminated = true
		res.Cause = ended.Cause
	}
	return res, nil
}

// CheckClaim replays req and compares against its claimed score.
func CheckClaim(t game.Tuning, req Request) (Check, error) {
	res, err := Replay(t, req)
	if err != nil {
		return Check{}, err
	}
	c := Check{Result: res, Valid: true}
	if req.ClaimedScore != nil {
		c.Claimed = *req.ClaimedScore
		c.Valid = res.Terminated && res.Score == c.Claimed
	}
	return c, nil
}
