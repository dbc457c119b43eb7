package transcode

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"helvetia/internal/transform"
)

// ImageArgs builds the ffmpeg argument list for an image plan. The
// same parameters always produce the same arguments.
func ImageArgs(inputPath, outputPath string, p transform.ImageParams) []string {
	cropFactor := 2 * p.CropPct / 100
	vf := fmt.Sprintf(
		"rotate=%.4f*PI/180:fillcolor=white@0,crop=iw-trunc(iw*%.4f):ih-trunc(ih*%.4f),noise=alls=%.2f:allf=t",
		p.RotationDeg, cropFactor, cropFactor, p.Noise,
	)

	codec := "mjpeg"
	if strings.EqualFold(filepath.Ext(outputPath), ".png") {
		codec = "png"
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath}
	if p.StripMetadata {
		args = append(args, "-map_metadata", "-1")
	}
	args = append(args, "-vf", vf, "-c:v", codec, outputPath)
	return args
}

// VideoArgs builds the ffmpeg argument list for a video plan. The
// caller probes the source first: targetBitrate is the absolute
// bitrate to encode at, hasAudio decides between retimed aac audio
// and no audio at all.
func VideoArgs(inputPath, outputPath string, p transform.VideoParams, targetBitrate int, hasAudio bool) []string {
	vf := fmt.Sprintf("setpts=%.5f*PTS,eq=gamma=%.4f", 1/p.SpeedFactor, p.Gamma)

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath}
	if p.StripMetadata {
		args = append(args, "-map_metadata", "-1")
	}
	args = append(args,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "medium",
		"-b:v", strconv.Itoa(targetBitrate),
		"-movflags", "+faststart",
	)
	if hasAudio {
		// El audio se retima junto con el video para mantener sincronía.
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-af", fmt.Sprintf("atempo=%.4f", p.SpeedFactor))
	} else {
		args = append(args, "-an")
	}
	args = append(args, outputPath)
	return args
}
