package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
	"helvetia/internal/transform"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
}

// fakeRunner scripts process execution per command name.
type fakeRunner struct {
	calls   [][]string
	handler func(ctx context.Context, name string, args []string) (Execution, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Execution, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.handler(ctx, name, args)
}

func newFakeInvoker(t *testing.T, fake *fakeRunner, timeout time.Duration) *Invoker {
	t.Helper()
	iv, err := NewInvoker(Options{Timeout: timeout, Runner: fake}, newTestLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return iv
}

func imagePlan() transform.ImageParams {
	return transform.ImageParams{RotationDeg: 0.2, CropPct: 0.3, Noise: 1.5, StripMetadata: true}
}

func TestInvokeImageSuccess(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	out := filepath.Join(dir, "out.jpg")
	if err := os.WriteFile(in, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		if err := os.WriteFile(args[len(args)-1], []byte("processed"), 0o644); err != nil {
			t.Fatal(err)
		}
		return Execution{}, nil
	}}
	iv := newFakeInvoker(t, fake, 0)

	if err := iv.Invoke(context.Background(), imagePlan(), in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected output to exist: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Errorf("expected a single ffmpeg call for images, got %d", len(fake.calls))
	}
}

func TestInvokeExitCodeBecomesTranscodeFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	out := filepath.Join(dir, "out.jpg")

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		// Simulate a partial write before the tool dies.
		if err := os.WriteFile(args[len(args)-1], []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
		return Execution{
			ExitCode: 1,
			Stderr:   []byte("Unknown encoder 'libx999'\n"),
		}, errors.New("exit status 1")
	}}
	iv := newFakeInvoker(t, fake, 0)

	err := iv.Invoke(context.Background(), imagePlan(), in, out)
	if !apperrors.IsCode(err, apperrors.CodeTranscode) {
		t.Fatalf("expected TRANSCODE_FAILURE, got %v", err)
	}
	if !strings.Contains(err.Error(), "ffmpeg exited with 1") {
		t.Errorf("expected exit code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "Unknown encoder 'libx999'") {
		t.Errorf("expected stderr excerpt in message, got %q", err.Error())
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("expected partial output to be removed on failure")
	}
}

func TestInvokeStdoutFallbackExcerpt(t *testing.T) {
	dir := t.TempDir()

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		return Execution{ExitCode: 2, Stdout: []byte("diagnostic on stdout")}, errors.New("exit status 2")
	}}
	iv := newFakeInvoker(t, fake, 0)

	err := iv.Invoke(context.Background(), imagePlan(), filepath.Join(dir, "in.jpg"), filepath.Join(dir, "out.jpg"))
	if !strings.Contains(err.Error(), "diagnostic on stdout") {
		t.Errorf("expected stdout fallback in message, got %q", err.Error())
	}
}

func TestInvokeTimeout(t *testing.T) {
	dir := t.TempDir()

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		<-ctx.Done()
		return Execution{ExitCode: -1}, ctx.Err()
	}}
	iv := newFakeInvoker(t, fake, 30*time.Millisecond)

	err := iv.Invoke(context.Background(), imagePlan(), filepath.Join(dir, "in.jpg"), filepath.Join(dir, "out.jpg"))
	if !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestInvokeCancelled(t *testing.T) {
	dir := t.TempDir()

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		<-ctx.Done()
		return Execution{ExitCode: -1}, ctx.Err()
	}}
	iv := newFakeInvoker(t, fake, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := iv.Invoke(ctx, imagePlan(), filepath.Join(dir, "in.jpg"), filepath.Join(dir, "out.jpg"))
	if !apperrors.IsCode(err, apperrors.CodeCancelled) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
}

func TestInvokeVideoProbesSource(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp4")
	out := filepath.Join(dir, "out.mp4")

	fake := &fakeRunner{}
	fake.handler = func(ctx context.Context, name string, args []string) (Execution, error) {
		joined := strings.Join(args, " ")
		switch {
		case name == "ffprobe" && strings.Contains(joined, "bit_rate"):
			return Execution{Stdout: []byte("1000000\n")}, nil
		case name == "ffprobe" && strings.Contains(joined, "codec_type"):
			return Execution{Stdout: []byte("audio\n")}, nil
		default:
			if err := os.WriteFile(args[len(args)-1], []byte("processed"), 0o644); err != nil {
				t.Fatal(err)
			}
			return Execution{}, nil
		}
	}
	iv := newFakeInvoker(t, fake, 0)

	plan := transform.VideoParams{BitrateFactor: 1.05, SpeedFactor: 1.01, Gamma: 1.002, StripMetadata: true}
	if err := iv.Invoke(context.Background(), plan, in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.calls) != 3 {
		t.Fatalf("expected 2 probes and 1 encode, got %d calls", len(fake.calls))
	}

	encode := strings.Join(fake.calls[2], " ")
	if !strings.Contains(encode, "-b:v 1050000") {
		t.Errorf("expected scaled bitrate in encode args, got %q", encode)
	}
	if !strings.Contains(encode, "-c:a aac") {
		t.Errorf("expected audio encode for source with audio, got %q", encode)
	}
}

func TestInvokeVideoProbeFailuresFallBack(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp4")
	out := filepath.Join(dir, "out.mp4")

	fake := &fakeRunner{}
	fake.handler = func(ctx context.Context, name string, args []string) (Execution, error) {
		if name == "ffprobe" {
			return Execution{ExitCode: 1}, errors.New("exit status 1")
		}
		if err := os.WriteFile(args[len(args)-1], []byte("processed"), 0o644); err != nil {
			t.Fatal(err)
		}
		return Execution{}, nil
	}
	iv := newFakeInvoker(t, fake, 0)

	plan := transform.VideoParams{BitrateFactor: 1.0, SpeedFactor: 1.0, Gamma: 1.0, StripMetadata: true}
	if err := iv.Invoke(context.Background(), plan, in, out); err != nil {
		t.Fatalf("expected probe failures to be survivable, got %v", err)
	}

	encode := strings.Join(fake.calls[len(fake.calls)-1], " ")
	if !strings.Contains(encode, "-b:v 2000000") {
		t.Errorf("expected default bitrate, got %q", encode)
	}
	if !strings.Contains(encode, "-an") {
		t.Errorf("expected audio dropped when probe fails, got %q", encode)
	}
}

func TestInvokeMissingOutputIsError(t *testing.T) {
	dir := t.TempDir()

	fake := &fakeRunner{handler: func(ctx context.Context, name string, args []string) (Execution, error) {
		// Exit zero without writing the output file.
		return Execution{}, nil
	}}
	iv := newFakeInvoker(t, fake, 0)

	err := iv.Invoke(context.Background(), imagePlan(), filepath.Join(dir, "in.jpg"), filepath.Join(dir, "out.jpg"))
	if err == nil {
		t.Fatal("expected error when output file is missing")
	}
	if !strings.Contains(err.Error(), "output file is missing") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestNewInvokerMissingBinary(t *testing.T) {
	_, err := NewInvoker(Options{FFmpegPath: "definitely-not-ffmpeg-xyz"}, newTestLogger())
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE for missing binary, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(10)

	tb.Write([]byte("0123456789abcdef"))
	if got := string(tb.Bytes()); got != "6789abcdef" {
		t.Errorf("expected tail of oversized write, got %q", got)
	}

	tb = newTailBuffer(10)
	tb.Write([]byte("01234"))
	tb.Write([]byte("56789"))
	tb.Write([]byte("abc"))
	if got := string(tb.Bytes()); got != "3456789abc" {
		t.Errorf("expected rolling tail, got %q", got)
	}
	if len(tb.Bytes()) != 10 {
		t.Errorf("expected capped length 10, got %d", len(tb.Bytes()))
	}
}
