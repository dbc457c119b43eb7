package transform

import (
	"math/rand/v2"
	"testing"

	"helvetia/internal/media"
)

func seededGenerator(seed uint64) *Generator {
	return NewGenerator(DefaultBounds(), rand.New(rand.NewPCG(seed, seed)))
}

func TestImageParamsWithinBounds(t *testing.T) {
	g := seededGenerator(1)
	b := DefaultBounds().Image

	for i := 0; i < 100; i++ {
		p, err := g.Generate(media.KindImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		img, ok := p.(ImageParams)
		if !ok {
			t.Fatalf("expected ImageParams, got %T", p)
		}

		if img.RotationDeg < -b.RotationMaxDeg || img.RotationDeg > b.RotationMaxDeg {
			t.Errorf("rotation %f outside ±%f", img.RotationDeg, b.RotationMaxDeg)
		}
		if img.CropPct < 0 || img.CropPct > b.CropMaxPct {
			t.Errorf("crop %f outside [0, %f]", img.CropPct, b.CropMaxPct)
		}
		if img.Noise < b.NoiseMax/2 || img.Noise > b.NoiseMax {
			t.Errorf("noise %f outside [%f, %f]", img.Noise, b.NoiseMax/2, b.NoiseMax)
		}
		if !img.StripMetadata {
			t.Error("expected StripMetadata to always be set")
		}
	}
}

func TestVideoParamsWithinBounds(t *testing.T) {
	g := seededGenerator(2)
	b := DefaultBounds().Video

	for i := 0; i < 100; i++ {
		p, err := g.Generate(media.KindVideo)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		vid, ok := p.(VideoParams)
		if !ok {
			t.Fatalf("expected VideoParams, got %T", p)
		}

		loBitrate := 1 - b.BitrateDeltaPct/100
		hiBitrate := 1 + b.BitrateDeltaPct/100
		if vid.BitrateFactor < loBitrate || vid.BitrateFactor > hiBitrate {
			t.Errorf("bitrate factor %f outside [%f, %f]", vid.BitrateFactor, loBitrate, hiBitrate)
		}

		loSpeed := 1 - b.SpeedDeltaPct/100
		hiSpeed := 1 + b.SpeedDeltaPct/100
		if vid.SpeedFactor < loSpeed || vid.SpeedFactor > hiSpeed {
			t.Errorf("speed factor %f outside [%f, %f]", vid.SpeedFactor, loSpeed, hiSpeed)
		}

		if vid.Gamma < 1-b.GammaDelta || vid.Gamma > 1+b.GammaDelta {
			t.Errorf("gamma %f outside 1±%f", vid.Gamma, b.GammaDelta)
		}
		if !vid.StripMetadata {
			t.Error("expected StripMetadata to always be set")
		}
	}
}

func TestConsecutiveDrawsDiffer(t *testing.T) {
	g := NewGenerator(DefaultBounds(), nil)

	seen := make(map[ImageParams]bool)
	for i := 0; i < 100; i++ {
		p, err := g.Generate(media.KindImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[p.(ImageParams)] = true
	}

	if len(seen) < 2 {
		t.Errorf("expected at least 2 distinct plans over 100 draws, got %d", len(seen))
	}
}

func TestSeededDrawsReproduce(t *testing.T) {
	a := seededGenerator(7)
	b := seededGenerator(7)

	for i := 0; i < 20; i++ {
		pa, err := a.Generate(media.KindVideo)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pb, err := b.Generate(media.KindVideo)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pa.(VideoParams) != pb.(VideoParams) {
			t.Fatalf("draw %d: same seed produced %v and %v", i, pa, pb)
		}
	}
}

func TestGenerateUnknownKind(t *testing.T) {
	g := seededGenerator(3)

	if _, err := g.Generate(media.Kind("audio")); err == nil {
		t.Error("expected error for unknown media kind")
	}
}

func TestCustomBounds(t *testing.T) {
	bounds := Bounds{
		Image: ImageBounds{RotationMaxDeg: 0.1, CropMaxPct: 0.2, NoiseMax: 1.0},
		Video: VideoBounds{BitrateDeltaPct: 1.0, SpeedDeltaPct: 0.5, GammaDelta: 0.005},
	}
	g := NewGenerator(bounds, rand.New(rand.NewPCG(9, 9)))

	for i := 0; i < 50; i++ {
		p, err := g.Generate(media.KindImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		img := p.(ImageParams)
		if img.RotationDeg < -0.1 || img.RotationDeg > 0.1 {
			t.Errorf("rotation %f outside custom bound", img.RotationDeg)
		}
		if img.CropPct > 0.2 {
			t.Errorf("crop %f outside custom bound", img.CropPct)
		}
	}
}
