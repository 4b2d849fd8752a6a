package simulator

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/practice-robot/robot-bridge/internal/ntp"
	"github.com/practice-robot/robot-bridge/internal/trackerpb"
)

// Bounds is the rectangle positions are drawn from.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

func (b Bounds) Validate() error {
	if b.MinX > b.MaxX {
		return fmt.Errorf("invalid x bounds: min %v > max %v", b.MinX, b.MaxX)
	}
	if b.MinY > b.MaxY {
		return fmt.Errorf("invalid y bounds: min %v > max %v", b.MinY, b.MaxY)
	}
	return nil
}

// Generator produces positions for the simulated robot.
type Generator interface {
	Generate() *trackerpb.Position
}

// RandomGenerator draws uniformly distributed positions inside Bounds,
// stamped with the clock's epoch milliseconds.
type RandomGenerator struct {
	bounds Bounds
	clock  ntp.TimeProvider

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomGenerator(bounds Bounds, clock ntp.TimeProvider, rnd *rand.Rand) (*RandomGenerator, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomGenerator{bounds: bounds, clock: clock, rnd: rnd}, nil
}

func (g *RandomGenerator) Generate() *trackerpb.Position {
	g.mu.Lock()
	fx, fy := g.rnd.Float64(), g.rnd.Float64()
	g.mu.Unlock()

	return &trackerpb.Position{
		X:         g.bounds.MinX + fx*(g.bounds.MaxX-g.bounds.MinX),
		Y:         g.bounds.MinY + fy*(g.bounds.MaxY-g.bounds.MinY),
		Timestamp: g.clock.NowUnixMilli(),
	}
}
