package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
	"github.com/aman-churiwal/fetch-gateway/internal/repository"
)

type AnalyticsService struct {
	repository *repository.FetchLogRepository
	now        func() time.Time
}

func NewAnalyticsService(repo *repository.FetchLogRepository) *AnalyticsService {
	return &AnalyticsService{
		repository: repo,
		now:        time.Now,
	}
}

// Holds the fetch summary for a time range
type AnalyticsSummary struct {
	From            time.Time               `json:"from"`
	To              time.Time               `json:"to"`
	TotalFetches    int64                   `json:"total_fetches"`
	AvgDurationMs   float64                 `json:"avg_duration_ms"`
	P50DurationMs   float64                 `json:"p50_duration_ms"`
	P95DurationMs   float64                 `json:"p95_duration_ms"`
	P99DurationMs   float64                 `json:"p99_duration_ms"`
	SuccessRate     float64                 `json:"success_rate"`
	ClientErrorRate float64                 `json:"client_error_rate"`
	ServerErrorRate float64                 `json:"server_error_rate"`
	ByType          map[string]int64        `json:"by_type"`
	ByCode          map[string]int64        `json:"by_code"`
	TopHosts        []repository.HostCount  `json:"top_hosts"`
	Hourly          []repository.HourlyStat `json:"hourly,omitempty"`
}

// Retrieves the fetch summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{From: from, To: to}

	total, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalFetches = total

	if total == 0 {
		return summary, nil
	}

	if summary.AvgDurationMs, err = s.repository.AverageDuration(ctx, from, to); err != nil {
		return nil, err
	}

	// Percentiles are best effort
	summary.P50DurationMs, _ = s.repository.DurationPercentile(ctx, from, to, 0.50)
	summary.P95DurationMs, _ = s.repository.DurationPercentile(ctx, from, to, 0.95)
	summary.P99DurationMs, _ = s.repository.DurationPercentile(ctx, from, to, 0.99)

	clientErrors, err := s.repository.CountByStatusRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}
	serverErrors, err := s.repository.CountByStatusRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	summary.ClientErrorRate = percent(clientErrors, total)
	summary.ServerErrorRate = percent(serverErrors, total)
	summary.SuccessRate = 100 - summary.ClientErrorRate - summary.ServerErrorRate

	if summary.ByType, err = s.repository.CountByType(ctx, from, to); err != nil {
		return nil, err
	}
	if summary.ByCode, err = s.repository.CountByCode(ctx, from, to); err != nil {
		return nil, err
	}
	if summary.TopHosts, err = s.repository.TopHosts(ctx, from, to, 10); err != nil {
		return nil, err
	}
	if summary.Hourly, err = s.repository.HourlyStats(ctx, from, to); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *AnalyticsService) GetTimeSeries(ctx context.Context, from, to time.Time) ([]repository.HourlyStat, error) {
	return s.repository.HourlyStats(ctx, from, to)
}

// Retrieves fetch logs with pagination and filtering
func (s *AnalyticsService) GetLogs(ctx context.Context, filter repository.LogFilter, limit, offset int) ([]models.FetchLog, error) {
	return s.repository.Find(ctx, filter, limit, offset)
}

// Deletes logs older than the retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutoff)
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
