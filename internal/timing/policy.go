// Package timing produces the randomized delays and choices that pace a
// decoy session.
package timing

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrEmptyInput is returned by Choice when there is nothing to choose from.
var ErrEmptyInput = errors.New("timing: empty input")

// Policy draws random values from a single source. The zero value is not
// usable; use New or Default.
type Policy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Policy seeded deterministically. Tests use this to get
// reproducible sessions.
func New(seed uint64) *Policy {
	return &Policy{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Default returns a Policy seeded from the runtime's entropy.
func Default() *Policy {
	return New(rand.Uint64())
}

func (p *Policy) float() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *Policy) intN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

// Delay returns a value in [min, max] drawn from a triangular distribution
// whose mode is the midpoint. Reversed bounds are swapped.
func (p *Policy) Delay(min, max float64) float64 {
	if min > max {
		min, max = max, min
	}
	if min == max {
		return min
	}
	u := p.float()
	span := max - min
	// mode sits at the midpoint so the CDF crosses 0.5 there
	if u < 0.5 {
		return min + math.Sqrt(u*span*span/2)
	}
	return max - math.Sqrt((1-u)*span*span/2)
}

// Duration is Delay expressed in seconds and converted to a time.Duration.
func (p *Policy) Duration(minSeconds, maxSeconds float64) time.Duration {
	return time.Duration(p.Delay(minSeconds, maxSeconds) * float64(time.Second))
}

// Uniform returns a value drawn uniformly from [min, max).
func (p *Policy) Uniform(min, max float64) float64 {
	if min > max {
		min, max = max, min
	}
	return min + p.float()*(max-min)
}

// Pause is Uniform in seconds, as a time.Duration.
func (p *Policy) Pause(minSeconds, maxSeconds float64) time.Duration {
	return time.Duration(p.Uniform(minSeconds, maxSeconds) * float64(time.Second))
}

// IntRange returns an integer in [min, max], inclusive on both ends.
func (p *Policy) IntRange(min, max int) int {
	if min > max {
		min, max = max, min
	}
	return min + p.intN(max-min+1)
}

// Chance reports true with probability prob.
func (p *Policy) Chance(prob float64) bool {
	return p.float() < prob
}

// Choice returns a uniformly selected element of items.
func Choice[T any](p *Policy, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrEmptyInput
	}
	return items[p.intN(len(items))], nil
}

// ChoiceOr is Choice with a fallback for empty input.
func ChoiceOr[T any](p *Policy, items []T, fallback T) T {
	v, err := Choice(p, items)
	if err != nil {
		return fallback
	}
	return v
}
