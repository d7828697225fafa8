package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/config"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
)

const (
	StatisticBatchSize    = 50
	StatisticBatchTimeout = 2 * time.Second
	StatisticPollTimeout  = 1 * time.Second
)

// StatisticWorker drains the completed-attempt queue and persists rows in
// batches, so the bot flow never waits on the statistics table.
type StatisticWorker struct {
	statRepo *repository.StatisticRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewStatisticWorker creates the statistic persistence worker.
func NewStatisticWorker(statRepo *repository.StatisticRepository, rdb *redis.Client, log zerolog.Logger) *StatisticWorker {
	return &StatisticWorker{
		statRepo: statRepo,
		rdb:      rdb,
		log:      log.With().Str("component", "statistic_worker").Logger(),
	}
}

// Start runs the drain loop until ctx is cancelled, flushing the remaining
// batch before returning.
func (w *StatisticWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StatisticWorker started")

	batch := make([]*model.ExamStatistic, 0, StatisticBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= StatisticBatchSize || time.Since(lastFlush) >= StatisticBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, StatisticPollTimeout, config.WorkerKey.PersistStatisticsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			stat := &model.ExamStatistic{}
			if err := json.Unmarshal([]byte(item[1]), stat); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, stat)
		}
	}
}

// flushSafe writes the batch in one statement, falling back to per-row
// inserts and requeueing anything that still fails.
func (w *StatisticWorker) flushSafe(ctx context.Context, batch []*model.ExamStatistic) {
	if len(batch) == 0 {
		return
	}

	if err := w.statRepo.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk statistic insert failed, using fallback")

		for _, stat := range batch {
			if err := w.statRepo.Insert(ctx, stat); err != nil {
				w.log.Error().Err(err).Str("exam_id", stat.ExamID).Msg("single insert failed — requeueing")
				raw, _ := json.Marshal(stat)
				w.rdb.RPush(ctx, config.WorkerKey.PersistStatisticsQueue, raw)
			}
		}
	}
}
