package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
)

const summaryCacheTTL = 30 * time.Second

// DashboardSummary consolidates all metrics for the admin dashboard.
type DashboardSummary struct {
	TotalUsers     int                   `json:"total_users"`
	TotalAttempts  int                   `json:"total_attempts"`
	TotalExams     int                   `json:"total_exams"`
	RecentAttempts []model.ExamStatistic `json:"recent_attempts"`
}

// StatsService serves aggregate reporting for the dashboard, with a short
// Redis cache in front of the heavier queries.
type StatsService struct {
	statRepo     *repository.StatisticRepository
	progressRepo *repository.ProgressRepository
	examRepo     *repository.ExamRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(
	statRepo *repository.StatisticRepository,
	progressRepo *repository.ProgressRepository,
	examRepo *repository.ExamRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *StatsService {
	return &StatsService{
		statRepo:     statRepo,
		progressRepo: progressRepo,
		examRepo:     examRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "stats_service").Logger(),
	}
}

// GetSummary returns the dashboard summary, served from cache when fresh.
func (s *StatsService) GetSummary(ctx context.Context) (*DashboardSummary, error) {
	cacheKey := config.CacheKey.DashboardSummaryKey()

	cached, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		summary := &DashboardSummary{}
		if err := json.Unmarshal([]byte(cached), summary); err == nil {
			return summary, nil
		}
		s.log.Warn().Msg("discarding unreadable cached summary")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("summary cache read failed")
	}

	users, err := s.progressRepo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	attempts, err := s.statRepo.CountAttempts(ctx)
	if err != nil {
		return nil, err
	}
	exams, err := s.examRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.statRepo.Recent(ctx, 10)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []model.ExamStatistic{}
	}

	summary := &DashboardSummary{
		TotalUsers:     users,
		TotalAttempts:  attempts,
		TotalExams:     exams,
		RecentAttempts: recent,
	}

	if blob, err := json.Marshal(summary); err == nil {
		if err := s.rdb.Set(ctx, cacheKey, blob, summaryCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("summary cache write failed")
		}
	}

	return summary, nil
}

// GetExamAggregate returns per-exam aggregate statistics, cached briefly.
func (s *StatsService) GetExamAggregate(ctx context.Context, examKey string) (*model.ExamAggregate, error) {
	cacheKey := config.CacheKey.ExamStatsKey(examKey)

	cached, err := s.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		agg := &model.ExamAggregate{}
		if err := json.Unmarshal([]byte(cached), agg); err == nil {
			return agg, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("aggregate cache read failed")
	}

	agg, err := s.statRepo.Aggregate(ctx, examKey)
	if err != nil {
		return nil, err
	}

	if blob, err := json.Marshal(agg); err == nil {
		if err := s.rdb.Set(ctx, cacheKey, blob, summaryCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("aggregate cache write failed")
		}
	}

	return agg, nil
}
