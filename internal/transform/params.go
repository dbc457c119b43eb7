// Package transform draws the randomized parameter plans that make
// each processed file unique. Draws stay inside configured bounds that
// keep the result visually identical to the source.
package transform

import "helvetia/internal/media"

// Parameters is one randomized render plan for a single job.
type Parameters interface {
	Kind() media.Kind
}

// ImageParams is the plan for a single image.
type ImageParams struct {
	// RotationDeg is a sub-degree rotation, positive or negative.
	RotationDeg float64
	// CropPct is the percentage of width and height trimmed per edge.
	CropPct float64
	// Noise is the ffmpeg noise filter strength.
	Noise float64
	// StripMetadata is always set by the generator.
	StripMetadata bool
}

func (ImageParams) Kind() media.Kind { return media.KindImage }

// VideoParams is the plan for a single video.
type VideoParams struct {
	// BitrateFactor multiplies the source bitrate.
	BitrateFactor float64
	// SpeedFactor retimes playback, stays near 1.0.
	SpeedFactor float64
	// Gamma is the eq filter gamma, stays near 1.0.
	Gamma float64
	// StripMetadata is always set by the generator.
	StripMetadata bool
}

func (VideoParams) Kind() media.Kind { return media.KindVideo }

// ImageBounds limits image parameter draws.
type ImageBounds struct {
	RotationMaxDeg float64
	CropMaxPct     float64
	NoiseMax       float64
}

// VideoBounds limits video parameter draws.
type VideoBounds struct {
	BitrateDeltaPct float64
	SpeedDeltaPct   float64
	GammaDelta      float64
}

// Bounds limits all parameter draws.
type Bounds struct {
	Image ImageBounds
	Video VideoBounds
}

// DefaultBounds returns the production defaults. They are small enough
// that the output is indistinguishable from the source by eye.
func DefaultBounds() Bounds {
	return Bounds{
		Image: ImageBounds{
			RotationMaxDeg: 0.3,
			CropMaxPct:     0.5,
			NoiseMax:       2.0,
		},
		Video: VideoBounds{
			BitrateDeltaPct: 5.0,
			SpeedDeltaPct:   2.0,
			GammaDelta:      0.01,
		},
	}
}
