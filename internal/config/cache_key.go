package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// WizardStateKey returns the cache key for an admin's exam-creation wizard state.
func (r *CacheKeyStruct) WizardStateKey(userID int64) string {
	return fmt.Sprintf("wizard:%d", userID)
}

// ExamStatsKey returns the cache key for an exam's aggregate statistics.
func (r *CacheKeyStruct) ExamStatsKey(examKey string) string {
	return fmt.Sprintf("exam:%s:stats", examKey)
}

// DashboardSummaryKey returns the cache key for the dashboard summary card data.
func (r *CacheKeyStruct) DashboardSummaryKey() string {
	return "dashboard:summary"
}

// LoginRateKey returns the rate-limit bucket key for a dashboard login source IP.
func (r *CacheKeyStruct) LoginRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:login:%s", ip)
}

// CompletionsChannel returns the Redis PubSub channel name for completed-attempt events.
func (r *CacheKeyStruct) CompletionsChannel() string {
	return "completions"
}

var CacheKey = NewCacheKeyStruct()
