package transform

import (
	"math/rand/v2"
	"sync"

	"helvetia/internal/media"
	"helvetia/internal/pkg/errors"
)

// Generator draws fresh parameters for every job. It is safe for
// concurrent use.
type Generator struct {
	bounds Bounds

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with the given bounds. A nil rng
// gets a randomly seeded source; tests pass a seeded one to make draws
// reproducible.
func NewGenerator(bounds Bounds, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{bounds: bounds, rng: rng}
}

// Generate draws a parameter plan for the given media kind.
func (g *Generator) Generate(kind media.Kind) (Parameters, error) {
	switch kind {
	case media.KindImage:
		return g.image(), nil
	case media.KindVideo:
		return g.video(), nil
	default:
		return nil, errors.Newf(errors.CodeValidation, "unknown media kind %q", string(kind))
	}
}

func (g *Generator) image() ImageParams {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.bounds.Image
	return ImageParams{
		RotationDeg: g.uniform(-b.RotationMaxDeg, b.RotationMaxDeg),
		CropPct:     g.uniform(0, b.CropMaxPct),
		// The lower half of the noise range is too weak to matter.
		Noise:         g.uniform(b.NoiseMax/2, b.NoiseMax),
		StripMetadata: true,
	}
}

func (g *Generator) video() VideoParams {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.bounds.Video
	return VideoParams{
		BitrateFactor: 1 + g.uniform(-b.BitrateDeltaPct, b.BitrateDeltaPct)/100,
		SpeedFactor:   1 + g.uniform(-b.SpeedDeltaPct, b.SpeedDeltaPct)/100,
		Gamma:         1 + g.uniform(-b.GammaDelta, b.GammaDelta),
		StripMetadata: true,
	}
}

// uniform draws from [lo, hi). Callers must hold g.mu.
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
