package transcode

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Execution captures one external command invocation.
type Execution struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is the process exit status, or -1 when the process did
	// not run or was killed by a signal.
	ExitCode int
}

// Runner abstracts process execution so tests can fake ffmpeg.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Execution, error)
}

// execRunner executes commands via os/exec, keeping only the tail of
// stderr so a noisy tool cannot grow memory without bound.
type execRunner struct {
	stderrLimit int
}

func newExecRunner(stderrLimit int) *execRunner {
	if stderrLimit <= 0 {
		stderrLimit = 4096
	}
	return &execRunner{stderrLimit: stderrLimit}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (Execution, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	stderr := newTailBuffer(r.stderrLimit)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	result := Execution{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// tailBuffer is an io.Writer that retains the last limit bytes written.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= b.limit {
		b.buf = append(b.buf[:0], p[n-b.limit:]...)
		return n, nil
	}
	if excess := len(b.buf) + n - b.limit; excess > 0 {
		b.buf = append(b.buf[:0], b.buf[excess:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) Bytes() []byte {
	return b.buf
}
