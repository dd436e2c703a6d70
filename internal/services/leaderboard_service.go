package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/repositories"
	"github.com/prepstack/exam-service/internal/validator"
)

type leaderboardService struct {
	repo      repositories.Repository
	validator *validator.Validator
	logger    *slog.Logger
}

func NewLeaderboardService(
	repo repositories.Repository,
	v *validator.Validator,
	logger *slog.Logger,
) LeaderboardService {
	return &leaderboardService{
		repo:      repo,
		validator: v,
		logger:    logger,
	}
}

// GetByExam returns a leaderboard page. Stored ranks are authoritative;
// entries written before the latest recompute finished may briefly show
// a stale rank, which the next scoring run corrects.
func (s *leaderboardService) GetByExam(ctx context.Context, examID uint, filters LeaderboardFilters) (*LeaderboardResponse, error) {
	if err := s.validator.Validate(&filters); err != nil {
		return nil, err
	}
	if _, err := s.repo.Exam().GetByID(ctx, nil, examID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}

	entries, total, err := s.repo.Leaderboard().ListByExam(ctx, nil, examID, filters.Limit, filters.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}

	rows := make([]LeaderboardRow, len(entries))
	for i, e := range entries {
		rows[i] = LeaderboardRow{
			Rank:         e.Rank,
			UserID:       e.UserID,
			Score:        e.Score,
			Percentage:   e.Percentage,
			TimeSpentSec: e.TimeSpentSec,
			SubmittedAt:  e.SubmittedAt,
		}
	}

	return &LeaderboardResponse{
		ExamID:  examID,
		Total:   total,
		Entries: rows,
	}, nil
}

// Global aggregates each user's best scores across all exams. Ranks are
// positional on the read: equal totals order by exams taken, then user id.
func (s *leaderboardService) Global(ctx context.Context, filters LeaderboardFilters) (*GlobalLeaderboardResponse, error) {
	if err := s.validator.Validate(&filters); err != nil {
		return nil, err
	}

	entries, total, err := s.repo.Leaderboard().GlobalRanking(ctx, nil, filters.Limit, filters.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to compute global ranking: %w", err)
	}

	rows := make([]GlobalLeaderboardRow, len(entries))
	for i, e := range entries {
		rows[i] = GlobalLeaderboardRow{
			Rank:       e.Rank,
			UserID:     e.UserID,
			TotalScore: e.TotalScore,
			ExamsTaken: e.ExamsTaken,
		}
	}

	return &GlobalLeaderboardResponse{
		Total:   total,
		Entries: rows,
	}, nil
}

// ExportByExam renders the full exam leaderboard as an XLSX workbook.
// Admin only.
func (s *leaderboardService) ExportByExam(ctx context.Context, examID uint, requester *models.AuthUser) ([]byte, string, error) {
	if requester == nil || requester.Role != models.RoleAdmin {
		userID := ""
		if requester != nil {
			userID = requester.ID
		}
		return nil, "", NewPermissionError(userID, examID, "leaderboard", "export", "admin role required")
	}

	exam, err := s.repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrExamNotFound
		}
		return nil, "", fmt.Errorf("failed to load exam: %w", err)
	}

	entries, err := s.repo.Leaderboard().GetAllByExam(ctx, nil, examID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list leaderboard: %w", err)
	}

	data, err := renderLeaderboardWorkbook(exam, entries)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("leaderboard_exam_%d_%s.xlsx", examID, time.Now().UTC().Format("20060102"))
	s.logger.Info("leaderboard exported",
		"exam_id", examID, "entries", len(entries), "requested_by", requester.ID)
	return data, filename, nil
}

var leaderboardExportHeader = []string{
	"Rank", "User ID", "Score", "Percentage", "Time Spent (sec)", "Submitted At",
}

func renderLeaderboardWorkbook(exam *models.Exam, entries []*models.LeaderboardEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Leaderboard"
	f.SetSheetName("Sheet1", sheet)

	for col, title := range leaderboardExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for i, e := range entries {
		row := i + 2
		values := []interface{}{
			e.Rank,
			e.UserID,
			e.Score,
			e.Percentage,
			e.TimeSpentSec,
			e.SubmittedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("failed to build cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	// Title metadata on a second sheet keeps the main grid clean.
	if _, err := f.NewSheet("Info"); err == nil {
		_ = f.SetCellValue("Info", "A1", "Exam")
		_ = f.SetCellValue("Info", "B1", exam.Title)
		_ = f.SetCellValue("Info", "A2", "Exported")
		_ = f.SetCellValue("Info", "B2", time.Now().UTC().Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
