package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"helvetia/internal/httpkit"
	"helvetia/internal/jobqueue"
	"helvetia/internal/media"
	"helvetia/internal/models"
	"helvetia/internal/pipeline"
	"helvetia/internal/pkg/errors"
	"helvetia/internal/pkg/middleware"
)

type upload struct {
	file   multipart.File
	header *multipart.FileHeader
	kind   media.Kind
}

// readUpload parses the multipart body and resolves the media kind,
// either from the explicit "kind" field or from the filename. The
// video size cap is enforced here, before any entitlement question.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.HandleError(w, r, h.log, errors.PayloadTooLarge(h.cfg.MaxUploadBytes))
			return nil, false
		}
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid multipart form", nil)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "file is required", map[string]any{"field": "file"})
		return nil, false
	}

	var kind media.Kind
	if raw := r.FormValue("kind"); raw != "" {
		kind, err = media.ParseKind(raw)
		if err != nil {
			file.Close()
			middleware.HandleError(w, r, h.log, err)
			return nil, false
		}
	} else {
		var ok bool
		kind, ok = media.DetectKind(header.Filename)
		if !ok {
			file.Close()
			httpkit.WriteErr(w, 400, "VALIDATION_ERROR",
				"cannot infer media kind from filename, pass the kind field",
				map[string]any{"filename": header.Filename})
			return nil, false
		}
	}

	if kind == media.KindVideo && header.Size > h.cfg.MaxVideoBytes {
		file.Close()
		middleware.HandleError(w, r, h.log,
			errors.PayloadTooLarge(h.cfg.MaxVideoBytes).WithField("size_bytes", header.Size))
		return nil, false
	}

	return &upload{file: file, header: header, kind: kind}, true
}

// Uniqueize runs one encode synchronously and streams the artifact
// back as the response body. The temp files are gone by the time the
// response ends.
func (h *Handler) Uniqueize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer up.file.Close()

	if !h.checkEntitlement(w, r, user) {
		return
	}

	art, err := h.pipe.Process(ctx, pipeline.Source{Reader: up.file, Name: up.header.Filename}, up.kind)
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}
	defer art.Release()

	h.consumeTrialCredit(ctx, user)

	name := "uniqueized" + filepath.Ext(art.Path)
	if err := httpkit.StreamFile(w, art.Path, name); err != nil {
		h.log.FromContext(ctx).Warn("artifact stream aborted", "error", err)
	}
}

// PostJob is the asynchronous form: the upload is staged and queued,
// and the client polls the returned job until the artifact is ready.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer up.file.Close()

	if !h.checkEntitlement(w, r, user) {
		return
	}

	t, err := h.pipe.Submit(ctx, pipeline.Source{Reader: up.file, Name: up.header.Filename}, up.kind)
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}

	httpkit.WriteJSON(w, 202, map[string]any{"job": jobView(t)})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	t, ok := h.pipe.Ticket(jobID)
	if !ok {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"job": jobView(t)})
}

// GetJobArtifact claims the finished output and streams it back. The
// claim is single-use: the file is released right after the response.
func (h *Handler) GetJobArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobId")

	t, ok := h.pipe.Ticket(jobID)
	if !ok {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}

	// Failed and cancelled jobs surface their own error instead of a
	// generic claim conflict.
	if st := t.Status(); st == jobqueue.StatusFailed || st == jobqueue.StatusCancelled {
		middleware.HandleError(w, r, h.log, t.Err())
		return
	}

	art, err := t.Claim()
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}
	defer art.Release()

	h.consumeTrialCredit(ctx, user)

	name := fmt.Sprintf("uniqueized-%s%s", t.JobID, filepath.Ext(art.Path))
	if err := httpkit.StreamFile(w, art.Path, name); err != nil {
		h.log.FromContext(ctx).Warn("artifact stream aborted", "job_id", t.JobID, "error", err)
	}
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	t, ok := h.pipe.Ticket(jobID)
	if !ok {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}

	t.Cancel()
	w.WriteHeader(204)
}

// checkEntitlement applies the subscription gate: an active plan or at
// least one free credit.
func (h *Handler) checkEntitlement(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	if user.CanProcess(time.Now()) {
		return true
	}
	middleware.HandleError(w, r, h.log, errors.QuotaExhausted().WithField("user_id", user.ID))
	return false
}

// consumeTrialCredit burns one free credit after a delivered encode.
// Users on a paid plan, active or not, are never charged credits.
func (h *Handler) consumeTrialCredit(ctx context.Context, user *models.User) {
	if !user.OnTrial() {
		return
	}
	if err := h.users.ConsumeCredit(ctx, user.ID); err != nil {
		h.log.FromContext(ctx).Warn("credit consume failed", "user_id", user.ID, "error", err)
	}
}

func jobView(t *pipeline.Ticket) map[string]any {
	v := map[string]any{
		"id":           t.JobID,
		"kind":         string(t.Kind),
		"status":       string(t.Status()),
		"submitted_at": t.SubmittedAt(),
	}
	if st := t.StartedAt(); !st.IsZero() {
		v["started_at"] = st
	}
	if ft := t.FinishedAt(); !ft.IsZero() {
		v["finished_at"] = ft
	}
	if err := t.Err(); err != nil {
		v["error"] = map[string]any{
			"code":    string(errors.GetCode(err)),
			"message": err.Error(),
		}
	}
	return v
}
