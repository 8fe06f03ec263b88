package fairness

import (
	"sync"

	"github.com/google/uuid"
)

// Assignment records which nonce a run consumed.
type Assignment struct {
	Seeds Seeds
	Nonce uint64
}

// Sequence hands out consecutive nonces under one seed pair and remembers the
// assignment of each run.
type Sequence struct {
	mu     sync.Mutex
	seeds  Seeds
	nonce  uint64
	issued map[uuid.UUID]uint64
}

// NewSequence starts a sequence whose first run uses nonce start.
func NewSequence(seeds Seeds, start uint64) *Sequence {
	return &Sequence{
		seeds:  seeds,
		nonce:  start,
		issued: make(map[uuid.UUID]uint64),
	}
}

// Stream assigns the next nonce to runID and returns its byte stream. The
// signature matches game.RandFactory once wrapped.
func (s *Sequence) Stream(runID uuid.UUID) *ByteStream {
	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.issued[runID] = nonce
	s.mu.Unlock()
	return NewByteStream(s.seeds, nonce, 0)
}

// Lookup returns the assignment made for runID.
func (s *Sequence) Lookup(runID uuid.UUID) (Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.issued[runID]
	if !ok {
		return Assignment{}, false
	}
	return Assignment{Seeds: s.seeds, Nonce: n}, true
}

// Forget drops the assignment for runID once it has been persisted.
func (s *Sequence) Forget(runID uuid.UUID) {
	s.mu.Lock()
	delete(s.issued, runID)
	s.mu.Unlock()
}

// NextNonce returns the nonce the next run will use.
func (s *Sequence) NextNonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

// Seeds returns the seed pair of the sequence.
func (s *Sequence) Seeds() Seeds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds
}
