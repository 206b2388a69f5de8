package scheduler

import (
	"context"
	"log/slog"
	"time"

	"billwatch/internal/domain"
)

// Crawler defines the interface for crawl runs.
type Crawler interface {
	Crawl(ctx context.Context) (*domain.CrawlStats, error)
}

type Scheduler struct {
	crawler  Crawler
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(crawler Crawler, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		crawler:  crawler,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runCrawl(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCrawl(ctx)
		}
	}
}

func (s *Scheduler) runCrawl(ctx context.Context) {
	crawlCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if _, err := s.crawler.Crawl(crawlCtx); err != nil {
		s.logger.Error("crawl failed", "error", err)
	}
}
