package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// UserRepository keeps a lightweight record per owner id. The id is an
// opaque caller-supplied string, trusted as-is.
type UserRepository interface {
	Upsert(ctx context.Context, ownerID, uiLang string) error
}

type userRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewUserRepository(db *DB, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}
	return &userRepo{db: db.SQL, log: log}
}

func (r *userRepo) Upsert(ctx context.Context, ownerID, uiLang string) error {
	if uiLang == "" {
		uiLang = "en"
	}
	now := time.Now().UTC().UnixMicro()
	// ON CONFLICT upsert is accepted by both Postgres and SQLite.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, ui_lang, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET ui_lang = $5, last_seen_at = $6`,
		ownerID, uiLang, now, now, uiLang, now)
	if err != nil {
		r.log.Error("user upsert failed", "owner_id", ownerID, "err", err)
	}
	return err
}
