package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
)

// ProgressService handles per-user exam state, best scores, badges and
// statistic persistence.
type ProgressService struct {
	progressRepo *repository.ProgressRepository
	scoreRepo    *repository.ScoreRepository
	badgeRepo    *repository.BadgeRepository
	legacyRepo   *repository.LegacyRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(
	progressRepo *repository.ProgressRepository,
	scoreRepo *repository.ScoreRepository,
	badgeRepo *repository.BadgeRepository,
	legacyRepo *repository.LegacyRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ProgressService {
	return &ProgressService{
		progressRepo: progressRepo,
		scoreRepo:    scoreRepo,
		badgeRepo:    badgeRepo,
		legacyRepo:   legacyRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "progress_service").Logger(),
	}
}

// LoadState returns the user's persisted progress row, creating a blank
// one when the user has never been seen before.
func (s *ProgressService) LoadState(ctx context.Context, userID int64, displayName string) (*model.UserProgress, error) {
	progress, err := s.progressRepo.Get(ctx, userID)
	if err == nil {
		if displayName != "" && progress.DisplayName != displayName {
			progress.DisplayName = displayName
		}
		return progress, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}

	progress = &model.UserProgress{
		UserID:      userID,
		DisplayName: displayName,
		Answered:    map[string]bool{},
	}
	if err := s.progressRepo.Upsert(ctx, progress); err != nil {
		return nil, fmt.Errorf("create progress row: %w", err)
	}
	return progress, nil
}

// SaveState persists the user's progress row.
func (s *ProgressService) SaveState(ctx context.Context, progress *model.UserProgress) error {
	return s.progressRepo.Upsert(ctx, progress)
}

// ResetProgress zeroes the attempt-scoped fields for a new run at examKey
// and persists the row.
func (s *ProgressService) ResetProgress(ctx context.Context, progress *model.UserProgress, examKey string) error {
	progress.ResetAttempt(examKey)
	return s.progressRepo.Upsert(ctx, progress)
}

// BestScoreResult reports the standing after a finished attempt.
type BestScoreResult struct {
	PreviousBest int
	NewBest      bool
	Attempts     int
}

// UpdateBestScore records a finished attempt against the best-score table and
// reports whether the new score beats the previous best.
func (s *ProgressService) UpdateBestScore(ctx context.Context, userID int64, displayName, examKey string, score, total int) (*BestScoreResult, error) {
	result := &BestScoreResult{}

	prev, err := s.scoreRepo.GetBest(ctx, userID, examKey)
	switch {
	case err == nil:
		result.PreviousBest = prev.BestScore
		result.NewBest = score > prev.BestScore
		result.Attempts = prev.AttemptCount + 1
	case err == repository.ErrNotFound:
		result.NewBest = true
		result.Attempts = 1
	default:
		return nil, err
	}

	if err := s.scoreRepo.RecordAttempt(ctx, userID, displayName, examKey, score, total); err != nil {
		return nil, err
	}

	switch examKey {
	case "lab":
		if err := s.legacyRepo.RecordLabResult(ctx, userID, displayName, score, total); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to record lab result")
		}
	case "mazen":
		if err := s.legacyRepo.RecordMazenResult(ctx, userID, displayName, score, total); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to record mazen result")
		}
	}

	return result, nil
}

// AwardBadges grants every badge the finished attempt qualifies for and
// returns the newly computed set. Already-held badges are kept by the
// repository's conflict handling.
func (s *ProgressService) AwardBadges(ctx context.Context, userID int64, score, total int) ([]string, error) {
	badgeIDs := deriveBadges(score, total)
	for _, id := range badgeIDs {
		if err := s.badgeRepo.Award(ctx, userID, id); err != nil {
			return nil, fmt.Errorf("award badge %s: %w", id, err)
		}
	}
	return badgeIDs, nil
}

// ListBadges returns every badge the user holds, newest first.
func (s *ProgressService) ListBadges(ctx context.Context, userID int64) ([]model.Badge, error) {
	return s.badgeRepo.ListByUser(ctx, userID)
}

// ListBestScores returns the user's best score per exam key.
func (s *ProgressService) ListBestScores(ctx context.Context, userID int64) ([]model.BestScoreRecord, error) {
	records, err := s.scoreRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return strings.Compare(records[i].ExamKey, records[j].ExamKey) < 0
	})
	return records, nil
}

// RecordStatistic enqueues a finished-attempt statistic for the background
// persistence worker. The bot flow never blocks on the statistics table.
func (s *ProgressService) RecordStatistic(ctx context.Context, examKey string, userID int64, score, total, elapsedSeconds int) error {
	stat := model.ExamStatistic{
		ID:             uuid.New(),
		ExamID:         examKey,
		UserID:         userID,
		Score:          score,
		TotalQuestions: total,
		ElapsedSeconds: elapsedSeconds,
		CompletedAt:    time.Now(),
	}

	payload, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("marshal statistic: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistStatisticsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue statistic: %w", err)
	}

	// Best effort live feed for the dashboard.
	if err := s.rdb.Publish(ctx, config.CacheKey.CompletionsChannel(), payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish completion event")
	}
	return nil
}

// deriveBadges maps a finished attempt to the badge ids it earns. Every
// finish earns the completion badge; score ratio tiers stack on top.
func deriveBadges(score, total int) []string {
	badges := []string{model.BadgeCompleted}
	if total <= 0 {
		return badges
	}

	switch {
	case score == total:
		badges = append(badges, model.BadgePerfect, model.BadgeExcellent)
	case score*100 >= total*90:
		badges = append(badges, model.BadgeExcellent)
	case score*100 >= total*80:
		badges = append(badges, model.BadgeGood)
	}
	return badges
}
