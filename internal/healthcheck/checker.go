package healthcheck

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe checks one dependency, typically with a ping
type Probe func(ctx context.Context) error

// Periodically probes the gateway's dependencies
type Checker struct {
	mu           sync.RWMutex
	probes       map[string]Probe
	names        []string
	healthStatus map[string]*Status
	critical     map[string]bool
	interval     time.Duration
	timeout      time.Duration
	maxFailures  int
	logger       *zap.Logger
	stopChan     chan struct{}
	running      bool
	now          func() time.Time
}

// Holds health checker configuration
type Config struct {
	Probes map[string]Probe
	// Dependencies whose failure makes the gateway unhealthy rather than degraded
	Critical    []string
	Interval    time.Duration // default: 15s
	Timeout     time.Duration // default: 2s
	MaxFailures int           // failures before marking unhealthy, default: 2
	Logger      *zap.Logger
}

func NewChecker(cfg Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	checker := &Checker{
		probes:       cfg.Probes,
		healthStatus: make(map[string]*Status, len(cfg.Probes)),
		critical:     make(map[string]bool, len(cfg.Critical)),
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		logger:       cfg.Logger,
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}

	for name := range cfg.Probes {
		checker.names = append(checker.names, name)
		// Assume healthy until the first failed probe
		checker.healthStatus[name] = &Status{
			Name:      name,
			IsHealthy: true,
			LastCheck: checker.now(),
		}
	}
	sort.Strings(checker.names)

	for _, name := range cfg.Critical {
		checker.critical[name] = true
	}

	return checker
}

// Runs one round of probes immediately, then periodically until Stop
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("starting dependency health checks",
		zap.Strings("dependencies", c.names),
		zap.Duration("interval", c.interval),
	)

	c.CheckAll(context.Background())

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.logger.Info("health checker stopped")
	}
}

// Probes every dependency concurrently
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup

	for _, name := range c.names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			c.check(ctx, name)
		}(name)
	}

	wg.Wait()
}

func (c *Checker) check(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.probes[name](ctx); err != nil {
		c.recordFailure(name, err)
		return
	}
	c.recordSuccess(name)
}

func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	status := c.healthStatus[name]
	status.LastCheck = now
	status.LastSuccess = now
	status.FailureCount = 0
	status.LastError = ""

	if !status.IsHealthy {
		c.logger.Info("dependency is healthy again", zap.String("dependency", name))
		status.IsHealthy = true
	}
}

func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	status := c.healthStatus[name]
	status.LastCheck = now
	status.LastFailure = now
	status.LastError = err.Error()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.logger.Warn("dependency is unhealthy",
			zap.String("dependency", name),
			zap.Int("failures", status.FailureCount),
			zap.Error(err),
		)
		status.IsHealthy = false
	}
}

// Returns a copy of every dependency's status
func (c *Checker) GetAllStatus() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]Status, len(c.healthStatus))
	for name, status := range c.healthStatus {
		statusMap[name] = *status
	}

	return statusMap
}

// Unhealthy when a critical dependency is down, degraded when any other is
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := Healthy
	for name, status := range c.healthStatus {
		if status.IsHealthy {
			continue
		}
		if c.critical[name] {
			return Unhealthy
		}
		overall = Degraded
	}

	return overall
}
