// Package transcode runs ffmpeg over staged files. Argument lists are
// built deterministically from a parameter plan; all randomness lives
// one layer up in transform.
package transcode

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/transform"
)

// Options configures an Invoker.
type Options struct {
	// FFmpegPath and FFprobePath name the binaries, resolved via PATH
	// when not absolute.
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds a single ffmpeg run. Zero means no limit.
	Timeout time.Duration
	// StderrExcerptBytes caps how much diagnostic output is retained.
	StderrExcerptBytes int
	// Runner overrides process execution, used by tests. When set, the
	// binaries are not looked up.
	Runner Runner
}

// Invoker executes one transcode at a time on behalf of the queue
// worker. It owns binary resolution, timeouts and failure taxonomy.
type Invoker struct {
	ffmpeg  string
	ffprobe string
	runner  Runner
	timeout time.Duration
	log     *logger.Logger
}

// NewInvoker builds an invoker, failing fast when a binary is missing
// so a misconfigured host is caught at startup and not on job one.
func NewInvoker(opts Options, log *logger.Logger) (*Invoker, error) {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}

	runner := opts.Runner
	if runner == nil {
		if _, err := exec.LookPath(opts.FFmpegPath); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "ffmpeg binary not found")
		}
		if _, err := exec.LookPath(opts.FFprobePath); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "ffprobe binary not found")
		}
		runner = newExecRunner(opts.StderrExcerptBytes)
	}

	return &Invoker{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
		runner:  runner,
		timeout: opts.Timeout,
		log:     log.WithComponent("transcode"),
	}, nil
}

// Invoke runs ffmpeg for one job. On any failure the output path is
// removed, a failed job never leaves a partial artifact behind.
func (iv *Invoker) Invoke(ctx context.Context, params transform.Parameters, inputPath, outputPath string) error {
	runCtx := ctx
	if iv.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, iv.timeout)
		defer cancel()
	}

	var args []string
	switch p := params.(type) {
	case transform.ImageParams:
		args = ImageArgs(inputPath, outputPath, p)
	case transform.VideoParams:
		target := iv.targetBitrate(runCtx, inputPath, p.BitrateFactor)
		hasAudio := iv.probeHasAudio(runCtx, inputPath)
		args = VideoArgs(inputPath, outputPath, p, target, hasAudio)
	default:
		return errors.Newf(errors.CodeValidation, "unsupported parameter type %T", params)
	}

	iv.log.Debug("running ffmpeg", "kind", string(params.Kind()), "args", strings.Join(args, " "))
	start := time.Now()

	result, err := iv.runner.Run(runCtx, iv.ffmpeg, args...)
	if err != nil {
		iv.removeOutput(outputPath)
		return iv.classify(runCtx, ctx, result, err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return errors.WrapWithCode(err, errors.CodeInternal, "ffmpeg completed but output file is missing")
	}

	iv.log.Debug("ffmpeg completed",
		"kind", string(params.Kind()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// classify maps a failed run to the error taxonomy. Context state is
// checked before the exit code because a killed process also reports
// a nonzero exit.
func (iv *Invoker) classify(runCtx, parent context.Context, result Execution, err error) error {
	switch {
	case parent.Err() == context.Canceled:
		return errors.Cancelled("transcode")
	case runCtx.Err() == context.DeadlineExceeded:
		return errors.Timeout("transcode").WithField("timeout", iv.timeout.String())
	case result.ExitCode >= 0:
		excerpt := strings.TrimSpace(string(result.Stderr))
		if excerpt == "" {
			excerpt = strings.TrimSpace(string(result.Stdout))
		}
		return errors.Transcode(result.ExitCode, excerpt)
	default:
		return errors.WrapWithCode(err, errors.CodeInternal, "ffmpeg failed")
	}
}

func (iv *Invoker) removeOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		iv.log.Warn("could not remove partial output", "path", path, "error", err.Error())
	}
}
