package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/fetch-gateway/internal/models"
	"github.com/aman-churiwal/fetch-gateway/internal/storage"
)

type FetchLogRepository struct {
	db *storage.Postgres
}

func NewFetchLogRepository(db *storage.Postgres) *FetchLogRepository {
	return &FetchLogRepository{db: db}
}

// LogFilter narrows log queries. Zero values are ignored.
type LogFilter struct {
	From           time.Time
	To             time.Time
	StatusCode     int
	ResourceType   string
	KeyFingerprint string
}

// HostCount is one row of the top hosts report
type HostCount struct {
	Host  string `json:"host"`
	Count int64  `json:"count"`
}

// HourlyStat is one bucket of the fetch time series
type HourlyStat struct {
	Hour          time.Time `json:"hour"`
	Count         int64     `json:"count"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
}

// Inserts multiple fetch logs in one statement
func (r *FetchLogRepository) CreateBatch(ctx context.Context, logs []models.FetchLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).CreateInBatches(&logs, 100).Error
}

// Retrieves logs matching f, most recent first
func (r *FetchLogRepository) Find(ctx context.Context, f LogFilter, limit, offset int) ([]models.FetchLog, error) {
	var logs []models.FetchLog

	q := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", f.From, f.To)
	if f.StatusCode != 0 {
		q = q.Where("status_code = ?", f.StatusCode)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.KeyFingerprint != "" {
		q = q.Where("key_fingerprint = ?", f.KeyFingerprint)
	}

	err := q.Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

func (r *FetchLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

func (r *FetchLogRepository) AverageDuration(ctx context.Context, from, to time.Time) (float64, error) {
	var avg float64

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Select("COALESCE(AVG(duration_ms), 0)").
		Scan(&avg).Error

	return avg, err
}

// Returns the given percentile of fetch duration in milliseconds
func (r *FetchLogRepository) DurationPercentile(ctx context.Context, from, to time.Time, percentile float64) (float64, error) {
	var result float64
	query := `
		SELECT COALESCE(PERCENTILE_CONT(?) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM fetch_logs
		WHERE timestamp BETWEEN ? AND ?
	`

	err := r.db.DB.WithContext(ctx).Raw(query, percentile, from, to).Scan(&result).Error
	return result, err
}

// Counts logs whose status falls in [minStatus, maxStatus]
func (r *FetchLogRepository) CountByStatusRange(ctx context.Context, minStatus, maxStatus int, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Where("status_code BETWEEN ? AND ? AND timestamp BETWEEN ? AND ?", minStatus, maxStatus, from, to).
		Count(&count).Error

	return count, err
}

// Returns counts grouped by column, which must be a trusted column name
func (r *FetchLogRepository) countGrouped(ctx context.Context, column string, from, to time.Time) (map[string]int64, error) {
	var rows []struct {
		GroupKey string
		Count    int64
	}

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Select(column + " as group_key, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.GroupKey] = row.Count
	}
	return out, nil
}

func (r *FetchLogRepository) CountByType(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	return r.countGrouped(ctx, "resource_type", from, to)
}

// Error codes other than success, e.g. TIMEOUT or BLOCKED_URL
func (r *FetchLogRepository) CountByCode(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	counts, err := r.countGrouped(ctx, "code", from, to)
	if err != nil {
		return nil, err
	}
	delete(counts, "")
	return counts, nil
}

// Returns the most frequently fetched hosts
func (r *FetchLogRepository) TopHosts(ctx context.Context, from, to time.Time, limit int) ([]HostCount, error) {
	var results []HostCount

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Select("host, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("host").
		Order("count DESC").
		Limit(limit).
		Scan(&results).Error

	return results, err
}

// Returns the fetch count grouped by hour
func (r *FetchLogRepository) HourlyStats(ctx context.Context, from, to time.Time) ([]HourlyStat, error) {
	var results []HourlyStat

	err := r.db.DB.WithContext(ctx).
		Model(&models.FetchLog{}).
		Select("DATE_TRUNC('hour', timestamp) as hour, COUNT(*) as count, AVG(duration_ms) as avg_duration_ms").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("hour").
		Order("hour ASC").
		Scan(&results).Error

	return results, err
}

// Deletes logs older than before
func (r *FetchLogRepository) DeleteOldLogs(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.FetchLog{})

	return result.RowsAffected, result.Error
}
