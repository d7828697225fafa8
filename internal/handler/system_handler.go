package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mishalinitiative/quizbot/internal/response"
)

// SystemHandler serves the liveness probe and the plain status page that
// keeps external uptime monitors happy.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// StatusPage godoc
// GET /
// Minimal HTML page confirming the bot process is alive.
func (h *SystemHandler) StatusPage(c *gin.Context) {
	uptime := time.Since(h.startTime).Round(time.Second)
	html := "<!DOCTYPE html><html><head><title>quizbot</title></head><body>" +
		"<h1>quizbot</h1><p>alive, uptime " + uptime.String() + "</p></body></html>"
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// Health godoc
// GET /api/v1/health
// Checks the Postgres and Redis connections.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := gin.H{"postgres": "ok", "redis": "ok", "uptime_seconds": int(time.Since(h.startTime).Seconds())}
	healthy := true

	if err := h.pool.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("postgres health check failed")
		status["postgres"] = "down"
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Error().Err(err).Msg("redis health check failed")
		status["redis"] = "down"
		healthy = false
	}

	if !healthy {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, status)
}
