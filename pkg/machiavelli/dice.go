package machiavelli

import (
	"math/rand"
	"time"
)

// Roller is the engine's only source of chance: famine, plague and
// assassination rolls. Tests substitute a scripted roller.
type Roller interface {
	D6() int
	Intn(n int) int
}

type randRoller struct {
	rng *rand.Rand
}

// NewRoller returns a roller seeded with seed, or with the clock when seed is 0.
func NewRoller(seed int64) Roller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &randRoller{rng: rand.New(rand.NewSource(seed))}
}

func (r *randRoller) D6() int        { return r.rng.Intn(6) + 1 }
func (r *randRoller) Intn(n int) int { return r.rng.Intn(n) }
