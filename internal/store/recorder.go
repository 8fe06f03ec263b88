package store

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/krigga/flappy-ton/internal/game"
)

// FrameRecorder buffers ticked frames per run and writes them in the
// background, so recording never blocks the game loop.
type FrameRecorder struct {
	db        DB
	flushSize int
	logger    *log.Logger

	mu      sync.Mutex
	buffers map[uuid.UUID][]game.Frame
	pending map[uuid.UUID]*sync.WaitGroup
	wg      sync.WaitGroup
}

// NewFrameRecorder creates a recorder. flushSize controls how many frames
// are buffered per run before a batch insert.
func NewFrameRecorder(db DB, flushSize int, logger *log.Logger) *FrameRecorder {
	if flushSize <= 0 {
		flushSize = 600
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FrameRecorder{
		db:        db,
		flushSize: flushSize,
		logger:    logger,
		buffers:   make(map[uuid.UUID][]game.Frame),
		pending:   make(map[uuid.UUID]*sync.WaitGroup),
	}
}

// RecordFrame implements game.FrameRecorder.
func (r *FrameRecorder) RecordFrame(runID uuid.UUID, f game.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := append(r.buffers[runID], f)
	if len(buf) >= r.flushSize {
		r.flushLocked(runID, buf)
		buf = make([]game.Frame, 0, r.flushSize)
	}
	r.buffers[runID] = buf
}

// Finish writes whatever is left for runID and forgets the run.
func (r *FrameRecorder) Finish(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(runID, r.buffers[runID])
	delete(r.buffers, runID)
	delete(r.pending, runID)
}

// Discard drops an abandoned run's buffer and deletes any batches already
// written for it once their writes complete.
func (r *FrameRecorder) Discard(runID uuid.UUID) {
	r.mu.Lock()
	delete(r.buffers, runID)
	inflight := r.pending[runID]
	delete(r.pending, runID)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if inflight != nil {
			inflight.Wait()
		}
		if err := r.db.DeleteFrames(runID.String()); err != nil {
			r.logger.Printf("store: discard frames error run_id=%s err=%v", runID, err)
		}
	}()
}

// Wait blocks until every background write has finished.
func (r *FrameRecorder) Wait() {
	r.wg.Wait()
}

func (r *FrameRecorder) flushLocked(runID uuid.UUID, frames []game.Frame) {
	if len(frames) == 0 {
		return
	}
	batch := make([]game.Frame, len(frames))
	copy(batch, frames)

	run := r.pending[runID]
	if run == nil {
		run = new(sync.WaitGroup)
		r.pending[runID] = run
	}
	run.Add(1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer run.Done()
		if err := r.db.SaveFrames(runID.String(), batch); err != nil {
			r.logger.Printf("store: flush frames error run_id=%s err=%v", runID, err)
		}
	}()
}
