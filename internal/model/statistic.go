package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatistic is one append-only row per completed attempt, used only for
// aggregate reporting.
type ExamStatistic struct {
	ID             uuid.UUID `json:"id"`
	ExamID         string    `json:"exam_id"`
	UserID         int64     `json:"user_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ExamAggregate is the derived read-only view over ExamStatistic rows.
type ExamAggregate struct {
	ExamID         string  `json:"exam_id"`
	Attempts       int     `json:"attempts"`
	AvgScore       float64 `json:"avg_score"`
	MaxScore       int     `json:"max_score"`
	MinScore       int     `json:"min_score"`
	AvgElapsedSecs float64 `json:"avg_elapsed_seconds"`
}
