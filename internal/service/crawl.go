package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"billwatch/internal/config"
	"billwatch/internal/domain"
)

// ErrLedgerNotEmpty means a previous run's change-set has not been
// flushed by the notification consumer yet. Starting a new crawl on top
// of it would mix two runs' change-sets, so this wants an operator, not a
// silent retry.
var ErrLedgerNotEmpty = errors.New("change ledger has unflushed entries from a previous run")

type CrawlService struct {
	source     Source
	bills      BillStore
	crawlState CrawlStateStore
	txManager  TransactionManager
	ledger     ChangeLedger
	changeLog  ChangeLog
	publisher  Publisher
	logger     *slog.Logger
	config     config.CrawlConfig
}

func NewCrawlService(
	source Source,
	bills BillStore,
	crawlState CrawlStateStore,
	txManager TransactionManager,
	ledger ChangeLedger,
	changeLog ChangeLog,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.CrawlConfig,
) *CrawlService {
	return &CrawlService{
		source:     source,
		bills:      bills,
		crawlState: crawlState,
		txManager:  txManager,
		ledger:     ledger,
		changeLog:  changeLog,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
		config:     cfg,
	}
}

// drainResult is one link's outcome from the extraction workers.
type drainResult struct {
	link       string
	key        string
	class      Classification
	record     *domain.BillRecord
	prevAction string
	err        error
}

// Crawl runs one full crawl: collect detail links across result pages,
// drain them through extraction and classification, persist accepted
// records and stage their change events. Stats are returned even when the
// run fails partway; everything done before the failure stays done.
func (s *CrawlService) Crawl(ctx context.Context) (*domain.CrawlStats, error) {
	startTime := time.Now()

	empty, err := s.ledger.Empty()
	if err != nil {
		return nil, fmt.Errorf("probe change ledger: %w", err)
	}
	if !empty {
		return nil, ErrLedgerNotEmpty
	}

	query := s.query()

	s.logger.Info("starting crawl",
		"source_name", s.source.Name(),
		"keyword", query.Keyword,
		"session_year", query.SessionYear,
		"item_budget", s.config.ItemBudget,
	)

	links, pageErr := s.source.CollectLinks(ctx, query, s.config.ItemBudget)
	if pageErr != nil {
		// Links gathered before the failure are still drained; the run
		// reports the error at the end.
		s.logger.Error("pagination incomplete", "collected", len(links), "error", pageErr)
	}

	stats := &domain.CrawlStats{Discovered: len(links)}

	s.logger.Info("collected bill links", "count", len(links))

	drainErr := s.drain(ctx, links, stats)

	if err := s.updateCrawlState(ctx, query, stats); err != nil {
		s.logger.Error("update crawl state", "error", err)
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("crawl completed",
		"discovered", stats.Discovered,
		"added", stats.Added,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	if drainErr != nil {
		return stats, drainErr
	}
	if pageErr != nil {
		return stats, fmt.Errorf("pagination incomplete: %w", pageErr)
	}
	return stats, nil
}

// drain runs extraction and classification over the collected links with
// a bounded worker pool, then serializes persistence and change staging
// on the consuming side. Extraction of one item never touches session
// state, so parallel detail fetches are safe; writes all happen here, one
// result at a time.
func (s *CrawlService) drain(ctx context.Context, links []string, stats *domain.CrawlStats) error {
	workers := s.config.Workers
	if workers < 1 {
		workers = 1
	}

	linkCh := make(chan string)
	resCh := make(chan drainResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range linkCh {
				resCh <- s.processLink(ctx, link)
			}
		}()
	}

	go func() {
		for _, link := range links {
			linkCh <- link
		}
		close(linkCh)
		wg.Wait()
		close(resCh)
	}()

	var fatal error
	for res := range resCh {
		if fatal != nil {
			continue
		}

		switch {
		case res.err != nil:
			// One bad item never aborts the run. It stays absent from
			// the store and will be picked up again next run.
			stats.Errors++
			s.logger.Error("bill skipped", "link", res.link, "error", res.err)
		case res.class == Unchanged:
			stats.Unchanged++
			s.logger.Debug("bill unchanged", "identity_key", res.key)
		default:
			if err := s.accept(ctx, res, stats); err != nil {
				fatal = err
			}
		}
	}

	return fatal
}

// processLink is the worker half of the drain: preview, classify, and
// only when something actually changed, the full (expensive) extraction.
func (s *CrawlService) processLink(ctx context.Context, link string) drainResult {
	res := drainResult{link: link}

	preview, err := s.source.ExtractPreview(ctx, link)
	if err != nil {
		res.err = err
		return res
	}
	res.key = preview.IdentityKey

	stored, err := s.bills.GetByIdentityKey(ctx, preview.IdentityKey)
	if err != nil {
		res.err = fmt.Errorf("load stored bill %s: %w", preview.IdentityKey, err)
		return res
	}

	res.class = Classify(preview, stored)
	if res.class == Unchanged {
		return res
	}
	if stored != nil {
		res.prevAction = stored.LastActionName
	}

	record, err := s.source.ExtractRecord(ctx, preview)
	if err != nil {
		res.err = err
		return res
	}
	res.record = record

	return res
}

// accept persists one added or updated bill and stages its change event.
// A persistence failure skips the item; a ledger write failure is fatal
// to the run, since a change that cannot be durably recorded must not be
// reported as accepted.
func (s *CrawlService) accept(ctx context.Context, res drainResult, stats *domain.CrawlStats) error {
	event := domain.ChangeEvent{IdentityKey: res.record.IdentityKey}
	if res.class == Unseen {
		event.Action = domain.ActionAdded
	} else {
		event.Action = domain.ActionUpdated
		event.PrevActionName = res.prevAction
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if res.class == Unseen {
			return s.bills.Insert(txCtx, res.record, s.config.CheckUnique)
		}
		return s.bills.Update(txCtx, res.record)
	})
	if err != nil {
		stats.Errors++
		s.logger.Error("persist bill", "identity_key", res.record.IdentityKey, "error", err)
		return nil
	}

	if err := s.ledger.Append(event); err != nil {
		return fmt.Errorf("append to change ledger: %w", err)
	}

	if s.changeLog != nil {
		if err := s.changeLog.Record(event); err != nil {
			s.logger.Error("record change", "identity_key", event.IdentityKey, "error", err)
		}
	}

	if event.Action == domain.ActionAdded {
		stats.Added++
	} else {
		stats.Updated++
	}
	s.logger.Info("bill accepted",
		"identity_key", event.IdentityKey,
		"action", event.Action,
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.record, event); err != nil {
			stats.Errors++
			s.logger.Error("publish change", "identity_key", event.IdentityKey, "error", err)
		} else {
			stats.Published++
		}
	}

	return nil
}

func (s *CrawlService) query() domain.Query {
	return domain.Query{
		Keyword:       s.config.Keyword,
		SessionYear:   s.config.SessionYear,
		BillNumber:    s.config.BillNumber,
		House:         s.config.House,
		LawCode:       s.config.LawCode,
		StatuteYear:   s.config.StatuteYear,
		ChapterNumber: s.config.ChapterNumber,
	}
}

func (s *CrawlService) updateCrawlState(ctx context.Context, query domain.Query, stats *domain.CrawlStats) error {
	key := query.Keyword
	if key == "" {
		key = "all"
	}

	state, err := s.crawlState.Get(ctx, key)
	if err != nil {
		return err
	}

	state.QueryKey = key
	state.LastCrawledAt = time.Now()
	state.TotalAccepted += int64(stats.Added + stats.Updated)

	return s.crawlState.Update(ctx, state)
}
