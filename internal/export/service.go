// Package export produces XLSX downloads of a user's processed history.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/moatazm17/PicDo-sub000/internal/store"
)

const pageSize = 200

// Service is a tiny façade over the job repository that produces XLSX bytes.
type Service struct {
	jobs   store.JobRepository
	logger *slog.Logger
}

func NewService(jobs store.JobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// HistoryXLSX returns a workbook (as bytes) with every job belonging to the
// owner, newest first.
func (s *Service) HistoryXLSX(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "History"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Type",
		"Title",
		"Summary",
		"Status",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 2
	total := 0
	var before *time.Time
	for {
		jobs, err := s.jobs.List(ctx, ownerID, pageSize, before, "")
		if err != nil {
			return nil, fmt.Errorf("query jobs: %w", err)
		}
		for _, j := range jobs {
			write(1, row, j.CreatedAt.UTC().Format("2006-01-02 15:04"))
			write(2, row, deref(j.Type))
			write(3, row, deref(j.Fields["title"]))
			write(4, row, truncate(deref(j.Summary), 140))
			write(5, row, string(j.Status))
			row++
		}
		total += len(jobs)
		if len(jobs) < pageSize {
			break
		}
		cursor := jobs[len(jobs)-1].CreatedAt
		before = &cursor
	}

	_ = f.SetColWidth(sheet, "A", "A", 18) // date
	_ = f.SetColWidth(sheet, "B", "B", 12) // type
	_ = f.SetColWidth(sheet, "C", "C", 32) // title
	_ = f.SetColWidth(sheet, "D", "D", 48) // summary
	_ = f.SetColWidth(sheet, "E", "E", 14) // status

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"owner_id", ownerID,
		"rows", total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
