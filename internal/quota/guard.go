// Package quota enforces the monthly per-user submission limit.
package quota

import (
	"context"
	"log/slog"
	"time"
)

// Counter is the store query the guard depends on: completed jobs for one
// owner inside a time window.
type Counter interface {
	CountReadyInWindow(ctx context.Context, ownerID string, from, to time.Time) (int, error)
}

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int
	ResetsAt  time.Time
}

// Guard counts an owner's ready jobs in the current calendar month. When
// FailOpen is set, a counter error grants the submission anyway and is
// logged as degraded mode.
type Guard struct {
	Counter  Counter
	Limit    int
	FailOpen bool
	Logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

const DefaultLimit = 50

func NewGuard(counter Counter, limit int, logger *slog.Logger) *Guard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		Counter:  counter,
		Limit:    limit,
		FailOpen: true,
		Logger:   logger,
		now:      time.Now,
	}
}

// Check answers "may this owner submit another job this month?".
func (g *Guard) Check(ctx context.Context, ownerID string) Decision {
	now := g.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Microsecond)
	resetsAt := monthStart.AddDate(0, 1, 0)

	used, err := g.Counter.CountReadyInWindow(ctx, ownerID, monthStart, monthEnd)
	if err != nil {
		if g.FailOpen {
			g.Logger.Warn("quota.check.degraded",
				"owner_id", ownerID, "error", err, "fail_open", true)
			return Decision{
				Allowed:   true,
				Used:      0,
				Limit:     g.Limit,
				Remaining: g.Limit,
				ResetsAt:  resetsAt,
			}
		}
		g.Logger.Error("quota.check.failed", "owner_id", ownerID, "error", err)
		return Decision{Allowed: false, Limit: g.Limit, ResetsAt: resetsAt}
	}

	remaining := g.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   used < g.Limit,
		Used:      used,
		Limit:     g.Limit,
		Remaining: remaining,
		ResetsAt:  resetsAt,
	}
}
