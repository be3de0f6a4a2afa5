package runtime

import (
	"math/rand/v2"

	"github.com/aretw0/weave/pkg/ports"
)

// DefaultSource draws from the runtime-seeded global generator and is safe for concurrent use.
var DefaultSource ports.RandomSource = globalSource{}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// NewSeededSource returns a deterministic source for reproducible runs.
// The returned generator is not safe for concurrent use.
func NewSeededSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
