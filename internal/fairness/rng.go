// Package fairness derives the obstacle randomness of a run from a committed
// server seed, a player-chosen client seed and a run nonce, so any run can be
// replayed and checked later.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Seeds identifies the randomness of a sequence of runs.
type Seeds struct {
	Server string `json:"serverSeed"`
	Client string `json:"clientSeed"`
}

// Validate checks that both seeds are present.
func (s Seeds) Validate() error {
	if s.Server == "" {
		return fmt.Errorf("fairness: server seed is required")
	}
	if s.Client == "" {
		return fmt.Errorf("fairness: client seed is required")
	}
	return nil
}

// ByteStream yields HMAC-SHA256(server, "client:nonce:round") bytes, 32 per round.
type ByteStream struct {
	seeds Seeds
	nonce uint64
	round uint64
	pos   int
	buf   [32]byte
}

// NewByteStream starts a stream at the given byte cursor.
func NewByteStream(seeds Seeds, nonce, cursor uint64) *ByteStream {
	bs := &ByteStream{
		seeds: seeds,
		nonce: nonce,
		round: cursor / 32,
		pos:   int(cursor % 32),
	}
	bs.fill()
	return bs
}

// Next returns the next byte.
func (bs *ByteStream) Next() byte {
	if bs.pos >= len(bs.buf) {
		bs.round++
		bs.pos = 0
		bs.fill()
	}
	b := bs.buf[bs.pos]
	bs.pos++
	return b
}

// Float64 consumes 4 bytes and returns a float in [0, 1).
func (bs *ByteStream) Float64() float64 {
	var b [4]byte
	for i := range b {
		b[i] = bs.Next()
	}
	return bytesToFloat(b)
}

func (bs *ByteStream) fill() {
	h := hmac.New(sha256.New, []byte(bs.seeds.Server))
	fmt.Fprintf(h, "%s:%d:%d", bs.seeds.Client, bs.nonce, bs.round)
	copy(bs.buf[:], h.Sum(nil))
}

func bytesToFloat(b [4]byte) float64 {
	f := 0.0
	for i, v := range b {
		f += float64(v) / math.Pow(256, float64(i+1))
	}
	return f
}

// Floats returns count floats for a run, starting at byte cursor 0.
func Floats(seeds Seeds, nonce uint64, count int) []float64 {
	bs := NewByteStream(seeds, nonce, 0)
	out := make([]float64, count)
	for i := range out {
		out[i] = bs.Float64()
	}
	return out
}

// HashServerSeed returns the hex SHA-256 commitment published before the
// server seed is revealed.
func HashServerSeed(server string) string {
	sum := sha256.Sum256([]byte(server))
	return hex.EncodeToString(sum[:])
}

// NewServerSeed returns 32 random bytes, hex encoded.
func NewServerSeed() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("fairness: generate server seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
