package tlb

import (
	"math/rand/v2"

	"github.com/sarchlab/demandvm/mem/vm/tlb/internal"
)

// A Builder can build TLBs.
type Builder struct {
	numEntries int
	seed       uint64
}

// MakeBuilder returns a Builder for a 64-entry TLB.
func MakeBuilder() Builder {
	return Builder{
		numEntries: 64,
		seed:       1,
	}
}

// WithNumEntries sets the number of slots in the TLB.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithSeed sets the seed of the random replacement policy.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	return b
}

// Build creates a new TLB.
func (b Builder) Build(name string) *Comp {
	if b.numEntries <= 0 {
		panic("TLB must have at least one entry")
	}

	rng := rand.New(rand.NewPCG(b.seed, uint64(b.numEntries)))

	return &Comp{
		name: name,
		set:  internal.NewSet(b.numEntries, rng),
	}
}
