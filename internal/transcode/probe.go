package transcode

import (
	"context"
	"strconv"
	"strings"
)

const (
	// defaultBitrate is assumed when ffprobe cannot report one, for
	// example mkv sources that only carry a container level rate.
	defaultBitrate = 2_000_000
	// minBitrate is the floor for the encode target so a bad probe
	// cannot produce an unwatchable file.
	minBitrate = 300_000
)

// probeBitrate asks ffprobe for the first video stream's bitrate in
// bits per second. Probe failures fall back to defaultBitrate, they
// never fail the job.
func (iv *Invoker) probeBitrate(ctx context.Context, path string) int {
	result, err := iv.runner.Run(ctx, iv.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=bit_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		iv.log.Debug("bitrate probe failed, using default", "error", err.Error())
		return defaultBitrate
	}

	rate, err := strconv.Atoi(strings.TrimSpace(string(result.Stdout)))
	if err != nil || rate <= 0 {
		return defaultBitrate
	}
	return rate
}

// probeHasAudio reports whether the source has at least one audio
// stream. A failed probe reports false, so the encode drops audio
// instead of failing on a filter with nothing to feed it.
func (iv *Invoker) probeHasAudio(ctx context.Context, path string) bool {
	result, err := iv.runner.Run(ctx, iv.ffprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		iv.log.Debug("audio probe failed, assuming no audio", "error", err.Error())
		return false
	}
	return strings.TrimSpace(string(result.Stdout)) != ""
}

// targetBitrate scales the probed source bitrate by the plan's factor,
// clamped to minBitrate.
func (iv *Invoker) targetBitrate(ctx context.Context, path string, factor float64) int {
	target := int(float64(iv.probeBitrate(ctx, path)) * factor)
	if target < minBitrate {
		return minBitrate
	}
	return target
}
