package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"billwatch/internal/domain"
)

type CrawlStateStore struct {
	db *sqlx.DB
}

func NewCrawlStateStore(db *sqlx.DB) *CrawlStateStore {
	return &CrawlStateStore{db: db}
}

func (s *CrawlStateStore) Get(ctx context.Context, queryKey string) (*domain.CrawlState, error) {
	var state domain.CrawlState
	query := `
		SELECT id, query_key, last_crawled_at, total_accepted
		FROM crawl_state
		WHERE query_key = $1`

	err := s.db.GetContext(ctx, &state, query, queryKey)
	if errors.Is(err, sql.ErrNoRows) {
		// First crawl for this query.
		return &domain.CrawlState{
			QueryKey:      queryKey,
			LastCrawledAt: time.Time{},
			TotalAccepted: 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *CrawlStateStore) Update(ctx context.Context, state *domain.CrawlState) error {
	query := `
		INSERT INTO crawl_state (query_key, last_crawled_at, total_accepted)
		VALUES ($1, $2, $3)
		ON CONFLICT (query_key) DO UPDATE SET
			last_crawled_at = EXCLUDED.last_crawled_at,
			total_accepted = EXCLUDED.total_accepted`

	_, err := s.db.ExecContext(ctx, query,
		state.QueryKey,
		state.LastCrawledAt,
		state.TotalAccepted,
	)
	return err
}
