// Package dice provides the randomness used by combat resolution and monster
// behaviour: a concurrency-safe Source, damage expressions, and a Roller that
// logs every roll.
package dice

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// Source is the randomness provider for rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(v.Int64())
}

// SequenceSource replays a fixed list of values, cycling when exhausted. Each
// value is reduced modulo n. Intended for deterministic tests.
type SequenceSource struct {
	mu     sync.Mutex
	values []int
	next   int
}

// NewSequenceSource returns a SequenceSource over values.
//
// Precondition: len(values) > 0 and every value >= 0.
func NewSequenceSource(values ...int) *SequenceSource {
	if len(values) == 0 {
		panic("dice.NewSequenceSource: at least one value required")
	}
	for _, v := range values {
		if v < 0 {
			panic("dice.NewSequenceSource: values must be >= 0")
		}
	}
	return &SequenceSource{values: values}
}

// Intn returns the next value modulo n.
func (s *SequenceSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v % n
}
