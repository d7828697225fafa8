package model

import (
	"fmt"
	"time"
)

// Stage identifies where in an exam flow a user currently is.
type Stage string

const (
	StageNone      Stage = ""
	StageIntro     Stage = "intro"
	StageMCQ       Stage = "mcq"
	StageNarrative Stage = "narrative"
	StageFinished  Stage = "finished"
)

// UserProgress is the single mutable per-user quiz state row. It is
// reconstructed from the store at the top of every request and written back
// after every transition.
type UserProgress struct {
	UserID      int64
	DisplayName string
	ExamKey     string
	Stage       Stage
	UnitID      int
	Level       int
	// QuestionIndex is the index within the current question phase. It is
	// monotonically non-decreasing within one attempt; only an explicit
	// reset returns it to zero.
	QuestionIndex int
	Score         int
	// Answered maps an AnswerKey to correctness. Presence alone marks the
	// question as consumed for the replay guard.
	Answered map[string]bool
	// QuestionMsgRef / StatusMsgRef are the live quiz message handles.
	QuestionMsgRef string
	StatusMsgRef   string
	// CleanupRefs collects every explanation/notice message emitted since
	// the last purge point.
	CleanupRefs []string
	StartedAt   *time.Time
	UpdatedAt   time.Time
}

// AnswerKey builds the Answered map key for one question of one unit.
func AnswerKey(unitID, questionIndex int) string {
	return fmt.Sprintf("%d:%d", unitID, questionIndex)
}

// ResetAttempt zeroes all attempt-scoped fields for a fresh run at examKey.
func (p *UserProgress) ResetAttempt(examKey string) {
	now := time.Now()
	p.ExamKey = examKey
	p.Stage = StageNone
	p.UnitID = 0
	p.Level = 0
	p.QuestionIndex = 0
	p.Score = 0
	p.Answered = map[string]bool{}
	p.QuestionMsgRef = ""
	p.StatusMsgRef = ""
	p.CleanupRefs = nil
	p.StartedAt = &now
}

// BestScoreRecord tracks the best completed attempt per (user, exam key).
// BestScore is monotonically non-decreasing; AttemptCount increments on
// every completed attempt.
type BestScoreRecord struct {
	UserID         int64     `json:"user_id"`
	ExamKey        string    `json:"exam_key"`
	BestScore      int       `json:"best_score"`
	TotalQuestions int       `json:"total_questions"`
	AttemptCount   int       `json:"attempt_count"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
}

// Badge is awarded idempotently per (user, badge id).
type Badge struct {
	UserID   int64     `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// Badge ids derived from completed-attempt scores.
const (
	BadgePerfect   = "perfect"
	BadgeExcellent = "excellent"
	BadgeGood      = "good"
	BadgeCompleted = "completed"
)
