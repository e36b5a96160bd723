// Package entropy provides the production Clock and EntropySource used by the
// ledger engine. Both are trivially replaceable in tests, which is the point
// of the interfaces.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// SystemClock maps wall time onto logical ticks by bucketing into fixed
// intervals. Every action inside one interval shares a tick, which is what
// the per-tick trade caps count against.
type SystemClock struct {
	interval time.Duration
}

// NewSystemClock creates a SystemClock with the given tick interval.
func NewSystemClock(interval time.Duration) *SystemClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &SystemClock{interval: interval}
}

func (c *SystemClock) Now() time.Time { return time.Now().UTC() }

func (c *SystemClock) Tick() uint64 {
	return uint64(time.Now().UnixNano() / int64(c.interval))
}

var _ domain.Clock = (*SystemClock)(nil)

// ChainedSource draws unpredictable 32-byte values by keccak-chaining a
// crypto/rand seed with a counter and the draw time. Even if the OS source
// degraded after startup, successive draws never repeat.
type ChainedSource struct {
	mu      sync.Mutex
	state   [32]byte
	counter uint64
}

// NewChainedSource seeds a ChainedSource from crypto/rand.
func NewChainedSource() (*ChainedSource, error) {
	var s ChainedSource
	if _, err := rand.Read(s.state[:]); err != nil {
		return nil, err
	}
	return &s, nil
}

// Draw returns the next value in the chain.
func (s *ChainedSource) Draw() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	var buf [48]byte
	copy(buf[:32], s.state[:])
	binary.BigEndian.PutUint64(buf[32:40], s.counter)
	binary.BigEndian.PutUint64(buf[40:48], uint64(time.Now().UnixNano()))

	out := crypto.Keccak256Hash(buf[:])
	copy(s.state[:], out[:])
	return out
}

var _ domain.EntropySource = (*ChainedSource)(nil)
