package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"billwatch/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	CollectLinks(ctx context.Context, query domain.Query, budget int) ([]string, error)
	ExtractPreview(ctx context.Context, link string) (*domain.BillPreview, error)
	ExtractRecord(ctx context.Context, preview *domain.BillPreview) (*domain.BillRecord, error)
}

type BillStore interface {
	GetByIdentityKey(ctx context.Context, key string) (*domain.BillRecord, error)
	Insert(ctx context.Context, record *domain.BillRecord, checkUnique bool) error
	Update(ctx context.Context, record *domain.BillRecord) error
}

type CrawlStateStore interface {
	Get(ctx context.Context, queryKey string) (*domain.CrawlState, error)
	Update(ctx context.Context, state *domain.CrawlState) error
}

type ChangeLedger interface {
	Empty() (bool, error)
	Append(event domain.ChangeEvent) error
}

type ChangeLog interface {
	Record(event domain.ChangeEvent) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, record *domain.BillRecord, event domain.ChangeEvent) error
	Close() error
}
