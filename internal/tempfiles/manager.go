// Package tempfiles owns the on-disk lifetime of staged inputs and
// transcode outputs. Every job gets its own directory under the
// configured root, and every path handed out is wrapped in a Handle
// whose Release is safe to call any number of times.
package tempfiles

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"helvetia/internal/metrics"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/logger"
)

// Manager creates and destroys per-job scratch files under a single root.
type Manager struct {
	root string
	log  *logger.Logger
}

// NewManager ensures the root directory exists and returns a manager
// rooted there.
func NewManager(root string, log *logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "create temp root")
	}
	return &Manager{
		root: root,
		log:  log.WithComponent("tempfiles"),
	}, nil
}

// Root returns the directory all job files live under.
func (m *Manager) Root() string {
	return m.root
}

// Handle is one temp file owned by the manager. Releasing it removes
// the file and prunes the job directory once it is empty.
type Handle struct {
	path     string
	jobID    string
	m        *Manager
	released atomic.Bool
}

// Path returns the absolute location of the file.
func (h *Handle) Path() string {
	return h.path
}

// JobID returns the job this file belongs to.
func (h *Handle) JobID() string {
	return h.jobID
}

// Released reports whether Release has already run.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Release deletes the file and, when it was the last one, the job
// directory. Calling it again is a no-op. Removal problems are logged,
// never returned; a missing file counts as already released.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		h.m.log.Warn("failed to remove temp file", "path", h.path, "error", err)
	}

	// El directorio del job se borra solo cuando ya quedó vacío.
	dirErr := os.Remove(filepath.Dir(h.path))
	if dirErr == nil || os.IsNotExist(dirErr) {
		return
	}
	if errors.Is(dirErr, syscall.ENOTEMPTY) || errors.Is(dirErr, syscall.EEXIST) {
		return
	}
	h.m.log.Warn("failed to remove job dir", "path", filepath.Dir(h.path), "error", dirErr)
}

// Stage copies src into a fresh input file for the job and returns a
// handle to it. The extension of filename is kept so ffmpeg can infer
// the container. A failed copy leaves nothing behind.
func (m *Manager) Stage(jobID string, src io.Reader, filename string) (*Handle, error) {
	jobDir := filepath.Join(m.root, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "create job dir")
	}

	dst := filepath.Join(jobDir, "in"+safeExt(filename))

	// Se escribe a .part y se renombra para no dejar archivos a medias.
	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "create staging file")
	}

	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "write staging file")
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "finalize staging file")
	}

	metrics.StagedBytes.Add(float64(n))
	m.log.Debug("staged input", "job_id", jobID, "path", dst, "size", n)

	return &Handle{path: dst, jobID: jobID, m: m}, nil
}

// StageFile copies an existing file on disk into the job directory,
// keeping its extension.
func (m *Manager) StageFile(jobID, srcPath string) (*Handle, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "open source file")
	}
	defer f.Close()
	return m.Stage(jobID, f, filepath.Base(srcPath))
}

// AllocateOutput reserves an output path inside the job directory. The
// file itself is not created; the encoder writes it.
func (m *Manager) AllocateOutput(jobID, filename string) (*Handle, error) {
	jobDir := filepath.Join(m.root, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeStaging, "create job dir")
	}

	return &Handle{
		path:  filepath.Join(jobDir, "out"+safeExt(filename)),
		jobID: jobID,
		m:     m,
	}, nil
}

// Sweep removes every entry under the root whose contents have not
// changed for at least maxAge. It returns how many entries were
// removed. Meant for crash recovery, not for normal cleanup, which
// happens through Release.
func (m *Manager) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read temp root")
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		path := filepath.Join(m.root, entry.Name())
		// Un encode activo mantiene fresco su archivo más nuevo,
		// así que los jobs en curso sobreviven al sweep.
		if newestModTime(path, entry).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			m.log.Warn("failed to sweep entry", "path", path, "error", err)
			continue
		}
		metrics.SweepRemovals.Inc()
		m.log.Info("swept stale temp entry", "path", path)
		removed++
	}

	return removed, nil
}

// newestModTime returns the most recent mtime among the entry itself
// and, for directories, its immediate children.
func newestModTime(path string, entry os.DirEntry) time.Time {
	newest := time.Time{}
	if info, err := entry.Info(); err == nil {
		newest = info.ModTime()
	}
	if !entry.IsDir() {
		return newest
	}
	children, err := os.ReadDir(path)
	if err != nil {
		return newest
	}
	for _, child := range children {
		info, err := child.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest
}

// safeExt extracts a usable lowercase extension from a client-supplied
// filename. Anything suspicious collapses to the empty string.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "." || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
