package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moatazm17/PicDo-sub000/constants"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrDuplicateID   = errors.New("job id already exists")
	ErrStateConflict = errors.New("job not in expected state")
)

// Job is the persisted record for one submitted image.
type Job struct {
	ID             string
	OwnerID        string
	Status         constants.JobStatus
	Source         constants.Source
	OCRText        string
	Type           *string
	Classification json.RawMessage
	Fields         map[string]*string
	Summary        *string
	Thumb          *string
	IsFavorite     bool
	Action         Action
	ErrorCode      *string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Action records whether the user acted on the result. Mutated only by the
// mark-action operation, never by the pipeline.
type Action struct {
	Applied   bool
	Type      *string
	AppliedAt *time.Time
}

// ReadyOutcome carries everything that must land atomically with the
// transition into ready.
type ReadyOutcome struct {
	Type           constants.ItemType
	Classification json.RawMessage
	Fields         map[string]*string
	Summary        string
}

type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id, ownerID string) (*Job, error)
	Delete(ctx context.Context, id, ownerID string) error

	// Pipeline writes. All are conditional on the expected prior status and
	// return ErrStateConflict when the job has moved on (or terminated).
	Transition(ctx context.Context, id string, from, to constants.JobStatus) error
	FinishOCR(ctx context.Context, id, ocrText string) error
	MarkReady(ctx context.Context, id string, out ReadyOutcome) error
	Fail(ctx context.Context, id string, code, message string) error
	SetThumb(ctx context.Context, id, thumb string) error

	// User writes. Owner-scoped, independent of pipeline state.
	UpdateFields(ctx context.Context, id, ownerID string, fields map[string]*string, summary *string) (*Job, error)
	SetFavorite(ctx context.Context, id, ownerID string, favorite bool) error
	MarkAction(ctx context.Context, id, ownerID string, applied bool, actionType *string) error

	// Reads for history and quota.
	List(ctx context.Context, ownerID string, limit int, before *time.Time, itemType string) ([]*Job, error)
	CountReadyInWindow(ctx context.Context, ownerID string, from, to time.Time) (int, error)

	// FailOrphans marks every non-terminal job failed. Called once at boot;
	// images are not persisted, so interrupted jobs cannot be resumed.
	FailOrphans(ctx context.Context, code, message string) (int64, error)
}

type jobRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db.SQL, log: log}
}

const jobColumns = `id, owner_id, status, source, ocr_text, item_type, classification,
	fields, summary, thumb, is_favorite, action_applied, action_type, action_applied_at,
	error_code, error_message, created_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = constants.JobStatusReceived
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.OwnerID, string(job.Status), string(job.Source),
		job.CreatedAt.UnixMicro(), job.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.log.Error("job id collision", "job_id", job.ID)
			return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
		}
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return err
	}
	r.log.Info("job created", "job_id", job.ID, "owner_id", job.OwnerID, "source", job.Source)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id, ownerID string) (*Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanJob(row)
}

func (r *jobRepo) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.log.Info("job deleted", "job_id", id, "owner_id", ownerID)
	return nil
}

func (r *jobRepo) Transition(ctx context.Context, id string, from, to constants.JobStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC().UnixMicro(), id, string(from),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrStateConflict, from, to)
	}
	return nil
}

func (r *jobRepo) FinishOCR(ctx context.Context, id, ocrText string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, ocr_text = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(constants.JobStatusOCRDone), ocrText, time.Now().UTC().UnixMicro(),
		id, string(constants.JobStatusOCRInProgress),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: finish ocr", ErrStateConflict)
	}
	return nil
}

func (r *jobRepo) MarkReady(ctx context.Context, id string, out ReadyOutcome) error {
	fieldsJSON, err := json.Marshal(out.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, item_type = $2, classification = $3,
			fields = $4, summary = $5, updated_at = $6
		WHERE id = $7 AND status = $8`,
		string(constants.JobStatusReady), string(out.Type), string(out.Classification),
		string(fieldsJSON), out.Summary, time.Now().UTC().UnixMicro(),
		id, string(constants.JobStatusAIInProgress),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: mark ready", ErrStateConflict)
	}
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id string, code, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, error_code = $2, error_message = $3, updated_at = $4
		WHERE id = $5 AND status NOT IN ($6, $7)`,
		string(constants.JobStatusFailed), code, message, time.Now().UTC().UnixMicro(),
		id, string(constants.JobStatusReady), string(constants.JobStatusFailed),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: already terminal", ErrStateConflict)
	}
	r.log.Warn("job failed", "job_id", id, "code", code, "error", message)
	return nil
}

func (r *jobRepo) SetThumb(ctx context.Context, id, thumb string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET thumb = $1, updated_at = $2 WHERE id = $3`,
		thumb, time.Now().UTC().UnixMicro(), id)
	return err
}

func (r *jobRepo) UpdateFields(ctx context.Context, id, ownerID string, fields map[string]*string, summary *string) (*Job, error) {
	job, err := r.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Fields == nil {
		job.Fields = map[string]*string{}
	}
	for k, v := range fields {
		job.Fields[k] = v
	}
	fieldsJSON, err := json.Marshal(job.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	if summary != nil {
		job.Summary = summary
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE jobs SET fields = $1, summary = $2, updated_at = $3
		WHERE id = $4 AND owner_id = $5`,
		string(fieldsJSON), nullString(job.Summary), time.Now().UTC().UnixMicro(), id, ownerID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) SetFavorite(ctx context.Context, id, ownerID string, favorite bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET is_favorite = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4`,
		boolToInt(favorite), time.Now().UTC().UnixMicro(), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) MarkAction(ctx context.Context, id, ownerID string, applied bool, actionType *string) error {
	var appliedAt any
	if applied {
		appliedAt = time.Now().UTC().UnixMicro()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET action_applied = $1, action_type = $2, action_applied_at = $3, updated_at = $4
		WHERE id = $5 AND owner_id = $6`,
		boolToInt(applied), nullString(actionType), appliedAt,
		time.Now().UTC().UnixMicro(), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepo) List(ctx context.Context, ownerID string, limit int, before *time.Time, itemType string) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1`
	args := []any{ownerID}
	if before != nil {
		args = append(args, before.UnixMicro())
		query += fmt.Sprintf(` AND created_at < $%d`, len(args))
	}
	if itemType != "" {
		args = append(args, itemType)
		query += fmt.Sprintf(` AND item_type = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *jobRepo) CountReadyInWindow(ctx context.Context, ownerID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE owner_id = $1 AND status = $2 AND created_at >= $3 AND created_at <= $4`,
		ownerID, string(constants.JobStatusReady), from.UnixMicro(), to.UnixMicro(),
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *jobRepo) FailOrphans(ctx context.Context, code, message string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, error_code = $2, error_message = $3, updated_at = $4
		WHERE status NOT IN ($5, $6)`,
		string(constants.JobStatusFailed), code, message, time.Now().UTC().UnixMicro(),
		string(constants.JobStatusReady), string(constants.JobStatusFailed),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Warn("orphaned jobs marked failed", "count", n)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		job                  Job
		status, source       string
		itemType             sql.NullString
		classification       sql.NullString
		fieldsJSON           sql.NullString
		summary, thumb       sql.NullString
		isFavorite, applied  int64
		actionType           sql.NullString
		actionAppliedAt      sql.NullInt64
		errCode, errMsg      sql.NullString
		createdAt, updatedAt int64
	)
	err := s.Scan(
		&job.ID, &job.OwnerID, &status, &source, &job.OCRText, &itemType, &classification,
		&fieldsJSON, &summary, &thumb, &isFavorite, &applied, &actionType, &actionAppliedAt,
		&errCode, &errMsg, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.Status = constants.JobStatus(status)
	job.Source = constants.Source(source)
	job.Type = stringPtr(itemType)
	if classification.Valid && classification.String != "" {
		job.Classification = json.RawMessage(classification.String)
	}
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &job.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	job.Summary = stringPtr(summary)
	job.Thumb = stringPtr(thumb)
	job.IsFavorite = isFavorite != 0
	job.Action.Applied = applied != 0
	job.Action.Type = stringPtr(actionType)
	if actionAppliedAt.Valid {
		t := time.UnixMicro(actionAppliedAt.Int64).UTC()
		job.Action.AppliedAt = &t
	}
	job.ErrorCode = stringPtr(errCode)
	job.ErrorMessage = stringPtr(errMsg)
	job.CreatedAt = time.UnixMicro(createdAt).UTC()
	job.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &job, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation matches both the pgx SQLSTATE and the sqlite message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint")
}
