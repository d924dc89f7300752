package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/moatazm17/PicDo-sub000/constants"
	"github.com/moatazm17/PicDo-sub000/internal/errcode"
	"github.com/moatazm17/PicDo-sub000/internal/pipeline"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

// handleSubmit validates synchronously, creates the job, and hands it to
// the pipeline. The response never waits for OCR or classification.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, errcode.MissingImage, "invalid multipart form or file too large")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, errcode.MissingImage, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil || len(image) == 0 {
		writeError(w, errcode.MissingImage, "image file is required")
		return
	}

	if s.cfg.Maintenance {
		writeError(w, errcode.MaintenanceMode, "service is under maintenance, try again later")
		return
	}

	decision := s.guard.Check(r.Context(), owner)
	if !decision.Allowed {
		writeError(w, errcode.LimitReached,
			fmt.Sprintf("monthly limit of %d reached, resets on %s",
				decision.Limit, decision.ResetsAt.Format("2006-01-02")))
		return
	}

	if !s.decodable(image) {
		writeError(w, errcode.InvalidImage, "unsupported or corrupt image")
		return
	}

	job := &store.Job{
		ID:      uuid.NewString(),
		OwnerID: owner,
		Status:  constants.JobStatusReceived,
		Source:  constants.NormalizeSource(r.FormValue("source")),
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.logger.Error("submit: create job failed", "err", err)
		writeError(w, errcode.ServerError, "could not create job")
		return
	}

	lang := r.Header.Get(headerUILang)
	if err := s.users.Upsert(r.Context(), owner, lang); err != nil {
		// Non-fatal: the job is already accepted.
		s.logger.Warn("submit: user upsert failed", "owner_id", owner, "err", err)
	}

	wantThumb, _ := strconv.ParseBool(r.FormValue("wantThumb"))
	_ = s.queue.Enqueue(r.Context(), pipeline.Task{
		JobID:     job.ID,
		OwnerID:   owner,
		Image:     image,
		WantThumb: wantThumb,
		Lang:      lang,
	})

	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"), owner)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	var body struct {
		Fields  map[string]*string `json:"fields"`
		Summary *string            `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errcode.InvalidRequest, "invalid request body")
		return
	}
	job, err := s.jobs.UpdateFields(r.Context(), r.PathValue("id"), owner, body.Fields, body.Summary)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": job.Fields})
}

func (s *Server) handleMarkAction(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	var body struct {
		Applied bool    `json:"applied"`
		Type    *string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errcode.InvalidRequest, "invalid request body")
		return
	}
	if err := s.jobs.MarkAction(r.Context(), r.PathValue("id"), owner, body.Applied, body.Type); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	var body struct {
		IsFavorite bool `json:"isFavorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errcode.InvalidRequest, "invalid request body")
		return
	}
	if err := s.jobs.SetFavorite(r.Context(), r.PathValue("id"), owner, body.IsFavorite); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isFavorite": body.IsFavorite})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	if err := s.jobs.Delete(r.Context(), r.PathValue("id"), owner); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCheckLimit(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	d := s.guard.Check(r.Context(), owner)
	message := "you can submit more items this month"
	if !d.Allowed {
		message = fmt.Sprintf("monthly limit reached, resets on %s", d.ResetsAt.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":   d.Allowed,
		"used":      d.Used,
		"limit":     d.Limit,
		"remaining": d.Remaining,
		"resetDate": d.ResetsAt.Format("2006-01-02"),
		"message":   message,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}

	var before *time.Time
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			writeError(w, errcode.InvalidRequest, "invalid cursor")
			return
		}
		before = &t
	}

	jobs, err := s.jobs.List(r.Context(), owner, limit, before, r.URL.Query().Get("type"))
	if err != nil {
		s.logger.Error("history: list failed", "owner_id", owner, "err", err)
		writeError(w, errcode.ServerError, "could not list jobs")
		return
	}

	items := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobView(j))
	}
	var nextCursor *string
	if len(jobs) == limit {
		c := jobs[len(jobs)-1].CreatedAt.Format(time.RFC3339Nano)
		nextCursor = &c
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"nextCursor": nextCursor,
	})
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeError(w, errcode.MissingUserID, "user id header is required")
		return
	}
	data, err := s.exporter.HistoryXLSX(r.Context(), owner)
	if err != nil {
		s.logger.Error("history export failed", "owner_id", owner, "err", err)
		writeError(w, errcode.ServerError, "could not export history")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="picdo-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, errcode.JobNotFound, "job not found")
		return
	}
	s.logger.Error("store operation failed", "err", err)
	writeError(w, errcode.ServerError, "internal error")
}
