package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/moatazm17/PicDo-sub000/internal/errcode"
	"github.com/moatazm17/PicDo-sub000/internal/store"
)

// errorBody is the uniform error payload: the stable code plus a
// human-readable message that never leaks internals.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var httpStatusByCode = map[errcode.Code]int{
	errcode.MissingUserID:   http.StatusBadRequest,
	errcode.MissingImage:    http.StatusBadRequest,
	errcode.InvalidImage:    http.StatusBadRequest,
	errcode.InvalidRequest:  http.StatusBadRequest,
	errcode.LimitReached:    http.StatusTooManyRequests,
	errcode.MaintenanceMode: http.StatusServiceUnavailable,
	errcode.JobNotFound:     http.StatusNotFound,
	errcode.ServerError:     http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code errcode.Code, message string) {
	status, ok := httpStatusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: string(code), Message: message})
}

// jobView is the observable subset of a job record.
type jobView struct {
	JobID      string             `json:"jobId"`
	Status     string             `json:"status"`
	Source     string             `json:"source"`
	OCRText    string             `json:"ocrText,omitempty"`
	Type       *string            `json:"type"`
	Fields     map[string]*string `json:"fields"`
	Summary    *string            `json:"summary"`
	Thumb      *string            `json:"thumb,omitempty"`
	IsFavorite bool               `json:"isFavorite"`
	Action     actionView         `json:"action"`
	Error      *errorBody         `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type actionView struct {
	Applied   bool       `json:"applied"`
	Type      *string    `json:"type"`
	AppliedAt *time.Time `json:"appliedAt"`
}

func toJobView(job *store.Job) jobView {
	v := jobView{
		JobID:      job.ID,
		Status:     string(job.Status),
		Source:     string(job.Source),
		OCRText:    job.OCRText,
		Type:       job.Type,
		Fields:     job.Fields,
		Summary:    job.Summary,
		Thumb:      job.Thumb,
		IsFavorite: job.IsFavorite,
		Action: actionView{
			Applied:   job.Action.Applied,
			Type:      job.Action.Type,
			AppliedAt: job.Action.AppliedAt,
		},
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.ErrorCode != nil {
		v.Error = &errorBody{Error: *job.ErrorCode}
		if job.ErrorMessage != nil {
			v.Error.Message = *job.ErrorMessage
		}
	}
	return v
}

// recoverMiddleware turns panics into server_error without leaking detail.
func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "path", r.URL.Path, "panic", rec)
				writeError(w, errcode.ServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
