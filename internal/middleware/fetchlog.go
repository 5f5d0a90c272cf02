package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/models"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

const (
	fetchLogBatchSize     = 100
	fetchLogFlushInterval = 5 * time.Second
)

type FetchLogWriter interface {
	CreateBatch(ctx context.Context, logs []models.FetchLog) error
}

// FetchLogRecorder queues one entry per fetch request and batch-inserts them
// from a single background worker. Entries are dropped when the queue is full.
type FetchLogRecorder struct {
	writer        FetchLogWriter
	entries       chan models.FetchLog
	logger        *zap.Logger
	flushInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewFetchLogRecorder(writer FetchLogWriter, bufferSize int, logger *zap.Logger) *FetchLogRecorder {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &FetchLogRecorder{
		writer:        writer,
		entries:       make(chan models.FetchLog, bufferSize),
		logger:        logger,
		flushInterval: fetchLogFlushInterval,
		stop:          make(chan struct{}),
	}
}

// Start runs the batch worker until Close
func (r *FetchLogRecorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		batch := make([]models.FetchLog, 0, fetchLogBatchSize)
		ticker := time.NewTicker(r.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case entry := <-r.entries:
				batch = append(batch, entry)
				if len(batch) >= fetchLogBatchSize {
					batch = r.flush(batch)
				}
			case <-ticker.C:
				batch = r.flush(batch)
			case <-r.stop:
				for {
					select {
					case entry := <-r.entries:
						batch = append(batch, entry)
					default:
						r.flush(batch)
						return
					}
				}
			}
		}
	}()
}

// Close stops the worker after writing queued entries
func (r *FetchLogRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *FetchLogRecorder) flush(batch []models.FetchLog) []models.FetchLog {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.writer.CreateBatch(ctx, batch); err != nil {
		r.logger.Warn("failed to insert fetch logs",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
	return make([]models.FetchLog, 0, fetchLogBatchSize)
}

// Record queues entry without blocking
func (r *FetchLogRecorder) Record(entry models.FetchLog) {
	select {
	case r.entries <- entry:
	default:
		metrics.IncFetchLogDropped()
	}
}

// Middleware records every request that reached the fetch endpoint with a url
func (r *FetchLogRecorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		req := FetchRequestFrom(c)
		if req == nil {
			return
		}

		targetURL := target.Normalize(req.URL, req.Type)
		entry := models.FetchLog{
			Timestamp:    start.UTC(),
			RequestID:    c.GetString(RequestIDKey),
			ResourceType: req.Type.String(),
			TargetURL:    targetURL,
			Host:         target.Hostname(targetURL),
			StatusCode:   c.Writer.Status(),
			DurationMs:   int(time.Since(start).Milliseconds()),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}
		if info := KeyInfoFrom(c); info != nil {
			entry.KeyFingerprint = info.Fingerprint
		}
		if last := c.Errors.Last(); last != nil {
			var apiErr *apierror.Error
			if errors.As(last.Err, &apiErr) {
				entry.Code = apiErr.Code
			}
		}

		r.Record(entry)
	}
}
