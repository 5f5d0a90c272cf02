package service

import (
	"context"
	"errors"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/aman-churiwal/fetch-gateway/internal/apierror"
	"github.com/aman-churiwal/fetch-gateway/internal/fetcher"
	"github.com/aman-churiwal/fetch-gateway/internal/guard"
	"github.com/aman-churiwal/fetch-gateway/internal/metrics"
	"github.com/aman-churiwal/fetch-gateway/internal/target"
)

// Fetcher performs one outbound GET
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, rt target.ResourceType) (*fetcher.Result, error)
}

const defaultMaxRobotsSitemaps = 3

type FetchService struct {
	fetcher           Fetcher
	guard             guard.Guard
	logger            *zap.Logger
	sitemapFromRobots bool
	maxRobotsSitemaps int
	probeTimeout      time.Duration
}

type FetchServiceConfig struct {
	Fetcher Fetcher
	Guard   guard.Guard
	Logger  *zap.Logger
	// Look up Sitemap: lines in robots.txt when the well-known paths miss
	SitemapFromRobots bool
	// Robots.txt-declared sitemaps tried per request. Default: 3
	MaxRobotsSitemaps int
	// Deadline for a whole sitemap probe, zero for none
	ProbeTimeout time.Duration
}

func NewFetchService(cfg FetchServiceConfig) *FetchService {
	if cfg.Guard == nil {
		cfg.Guard = guard.Literal{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxRobotsSitemaps <= 0 {
		cfg.MaxRobotsSitemaps = defaultMaxRobotsSitemaps
	}
	return &FetchService{
		fetcher:           cfg.Fetcher,
		guard:             cfg.Guard,
		logger:            cfg.Logger,
		sitemapFromRobots: cfg.SitemapFromRobots,
		maxRobotsSitemaps: cfg.MaxRobotsSitemaps,
		probeTimeout:      cfg.ProbeTimeout,
	}
}

// Fetch resolves raw to the resource of type rt and fetches it. Failures are
// returned as *apierror.Error. The caller's cancellation is not propagated to
// the outbound request; only the fetch and probe timeouts bound it.
func (s *FetchService) Fetch(ctx context.Context, raw string, rt target.ResourceType) (*fetcher.Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	var (
		result *fetcher.Result
		err    error
	)
	if rt == target.Sitemap {
		result, err = s.fetchSitemap(ctx, raw)
	} else {
		result, err = s.fetchOne(ctx, target.Normalize(raw, rt), rt)
	}

	outcome := "OK"
	length := 0
	if err != nil {
		outcome = apierror.From(err).Code
	} else {
		length = result.Length
	}
	metrics.ObserveFetch(rt.String(), outcome, time.Since(start), length)

	return result, err
}

func (s *FetchService) fetchOne(ctx context.Context, rawURL string, rt target.ResourceType) (*fetcher.Result, error) {
	if err := s.guard.Check(rawURL); err != nil {
		return nil, apierror.BlockedURL(target.Hostname(rawURL), err)
	}

	result, err := s.fetcher.Fetch(ctx, rawURL, rt)
	if err != nil {
		return nil, mapFetchError(err)
	}
	if !result.Success {
		return nil, apierror.FetchFailed(result.StatusCode, nil)
	}
	return result, nil
}

// Tries each sitemap candidate in order and returns the first 2xx. Only a
// blocked target or a timeout stops the probe early. The probe timeout bounds
// all candidates together, so running out of it ends with TIMEOUT.
func (s *FetchService) fetchSitemap(ctx context.Context, raw string) (*fetcher.Result, error) {
	if s.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
	}

	candidates := target.Candidates(raw, target.Sitemap)
	tried := make([]string, 0, len(candidates))

	if err := s.guard.Check(candidates[0]); err != nil {
		return nil, apierror.BlockedURL(target.Hostname(candidates[0]), err)
	}

	for _, candidate := range candidates {
		result, done, err := s.trySitemap(ctx, candidate)
		tried = append(tried, candidate)
		if done {
			return result, err
		}
	}

	if s.sitemapFromRobots {
		for _, candidate := range s.robotsSitemaps(ctx, candidates[0], tried) {
			if err := s.guard.Check(candidate); err != nil {
				s.logger.Debug("skipping blocked sitemap from robots.txt",
					zap.String("url", candidate),
				)
				continue
			}
			result, done, err := s.trySitemap(ctx, candidate)
			tried = append(tried, candidate)
			if done {
				return result, err
			}
		}
	}

	return nil, apierror.SitemapNotFound(tried)
}

// done reports whether probing should stop, either on success or on an error
// that further candidates cannot fix.
func (s *FetchService) trySitemap(ctx context.Context, candidate string) (*fetcher.Result, bool, error) {
	result, err := s.fetcher.Fetch(ctx, candidate, target.Sitemap)
	switch {
	case errors.Is(err, fetcher.ErrTimeout), errors.Is(err, guard.ErrBlocked):
		return nil, true, mapFetchError(err)
	case err != nil:
		s.logger.Debug("sitemap candidate failed",
			zap.String("url", candidate),
			zap.Error(err),
		)
		return nil, false, nil
	case !result.Success:
		s.logger.Debug("sitemap candidate missed",
			zap.String("url", candidate),
			zap.Int("status", result.StatusCode),
		)
		return nil, false, nil
	}
	return result, true, nil
}

// Returns up to maxRobotsSitemaps Sitemap: URLs declared in the host's
// robots.txt that have not been tried yet
func (s *FetchService) robotsSitemaps(ctx context.Context, base string, tried []string) []string {
	robotsURL := target.WithPath(base, "/robots.txt")

	result, err := s.fetcher.Fetch(ctx, robotsURL, target.Robots)
	if err != nil || !result.Success || result.Content == "" {
		return nil
	}

	data, err := robotstxt.FromBytes([]byte(result.Content))
	if err != nil {
		s.logger.Debug("failed to parse robots.txt",
			zap.String("url", robotsURL),
			zap.Error(err),
		)
		return nil
	}

	seen := make(map[string]struct{}, len(tried))
	for _, t := range tried {
		seen[t] = struct{}{}
	}

	out := make([]string, 0, s.maxRobotsSitemaps)
	for _, sm := range data.Sitemaps {
		if len(out) == s.maxRobotsSitemaps {
			s.logger.Debug("ignoring extra sitemaps from robots.txt",
				zap.String("url", robotsURL),
				zap.Int("declared", len(data.Sitemaps)),
			)
			break
		}
		if _, ok := seen[sm]; ok {
			continue
		}
		seen[sm] = struct{}{}
		out = append(out, sm)
	}
	return out
}

func mapFetchError(err error) error {
	switch {
	case errors.Is(err, fetcher.ErrTimeout):
		return apierror.Timeout(err)
	case errors.Is(err, guard.ErrBlocked):
		return apierror.BlockedURL("", err)
	default:
		return apierror.FetchFailed(0, err)
	}
}
