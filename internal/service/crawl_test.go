package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"billwatch/internal/config"
	"billwatch/internal/domain"
	"billwatch/internal/service/mocks"
)

type CrawlServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source     *mocks.MockSource
	bills      *mocks.MockBillStore
	crawlState *mocks.MockCrawlStateStore
	txManager  *mocks.MockTransactionManager
	ledger     *mocks.MockChangeLedger
	changeLog  *mocks.MockChangeLog
	publisher  *mocks.MockPublisher

	service *CrawlService
	cfg     config.CrawlConfig
	logger  *slog.Logger
	query   domain.Query
}

func (s *CrawlServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.bills = mocks.NewMockBillStore(s.ctrl)
	s.crawlState = mocks.NewMockCrawlStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.ledger = mocks.NewMockChangeLedger(s.ctrl)
	s.changeLog = mocks.NewMockChangeLog(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.CrawlConfig{
		Keyword:     "education",
		SessionYear: "2019-2020",
		House:       "Both",
		LawCode:     "All",
		ItemBudget:  -1,
		Workers:     1,
	}

	s.query = domain.Query{
		Keyword:     "education",
		SessionYear: "2019-2020",
		House:       "Both",
		LawCode:     "All",
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.source.EXPECT().ID().Return("test-source").AnyTimes()
	s.source.EXPECT().Name().Return("Test Source").AnyTimes()

	s.service = NewCrawlService(
		s.source,
		s.bills,
		s.crawlState,
		s.txManager,
		s.ledger,
		s.changeLog,
		s.publisher,
		s.logger,
		s.cfg,
	)
}

func (s *CrawlServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCrawlServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CrawlServiceTestSuite))
}

func (s *CrawlServiceTestSuite) expectCrawlState() {
	s.crawlState.EXPECT().Get(gomock.Any(), "education").Return(&domain.CrawlState{QueryKey: "education"}, nil)
	s.crawlState.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *CrawlServiceTestSuite) runTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *CrawlServiceTestSuite) TestCrawl_NewBill() {
	ctx := context.Background()
	link := "https://example.com/billNavClient.xhtml?bill_id=201920200AB100"

	preview := &domain.BillPreview{
		IdentityKey:    "201920200AB100",
		Link:           link,
		LastActionDate: "2020-03-02",
		LastActionName: "Introduced",
	}
	record := &domain.BillRecord{
		IdentityKey:    "201920200AB100",
		Code:           "AB-100",
		LastActionDate: "2020-03-02",
		LastActionName: "Introduced",
	}

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return([]string{link}, nil)
	s.source.EXPECT().ExtractPreview(ctx, link).Return(preview, nil)
	s.bills.EXPECT().GetByIdentityKey(ctx, "201920200AB100").Return(nil, nil)
	s.source.EXPECT().ExtractRecord(ctx, preview).Return(record, nil)

	s.runTransaction()
	s.bills.EXPECT().Insert(gomock.Any(), record, false).Return(nil)

	event := domain.ChangeEvent{Action: domain.ActionAdded, IdentityKey: "201920200AB100"}
	s.ledger.EXPECT().Append(event).Return(nil)
	s.changeLog.EXPECT().Record(event).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), record, event).Return(nil)

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.NoError(err)
	s.Equal(1, stats.Discovered)
	s.Equal(1, stats.Added)
	s.Equal(0, stats.Updated)
	s.Equal(0, stats.Unchanged)
	s.Equal(1, stats.Published)
}

func (s *CrawlServiceTestSuite) TestCrawl_UpdatedBillCarriesPreviousAction() {
	ctx := context.Background()
	link := "https://example.com/billNavClient.xhtml?bill_id=201920200SB7"

	preview := &domain.BillPreview{
		IdentityKey:    "201920200SB7",
		LastActionDate: "2020-06-15",
		LastActionName: "Enrolled",
	}
	stored := &domain.BillRecord{
		IdentityKey:    "201920200SB7",
		LastActionDate: "2020-03-02",
		LastActionName: "Referred to Committee",
	}
	record := &domain.BillRecord{
		IdentityKey:    "201920200SB7",
		LastActionDate: "2020-06-15",
		LastActionName: "Enrolled",
	}

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return([]string{link}, nil)
	s.source.EXPECT().ExtractPreview(ctx, link).Return(preview, nil)
	s.bills.EXPECT().GetByIdentityKey(ctx, "201920200SB7").Return(stored, nil)
	s.source.EXPECT().ExtractRecord(ctx, preview).Return(record, nil)

	s.runTransaction()
	s.bills.EXPECT().Update(gomock.Any(), record).Return(nil)

	event := domain.ChangeEvent{
		Action:         domain.ActionUpdated,
		IdentityKey:    "201920200SB7",
		PrevActionName: "Referred to Committee",
	}
	s.ledger.EXPECT().Append(event).Return(nil)
	s.changeLog.EXPECT().Record(event).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), record, event).Return(nil)

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.NoError(err)
	s.Equal(0, stats.Added)
	s.Equal(1, stats.Updated)
}

func (s *CrawlServiceTestSuite) TestCrawl_UnchangedSkipsFullExtraction() {
	ctx := context.Background()
	link := "https://example.com/billNavClient.xhtml?bill_id=201920200AB100"

	preview := &domain.BillPreview{
		IdentityKey:    "201920200AB100",
		LastActionDate: "2020-03-02",
	}
	stored := &domain.BillRecord{
		IdentityKey:    "201920200AB100",
		LastActionDate: "2020-03-02",
	}

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return([]string{link}, nil)
	s.source.EXPECT().ExtractPreview(ctx, link).Return(preview, nil)
	s.bills.EXPECT().GetByIdentityKey(ctx, "201920200AB100").Return(stored, nil)
	// No ExtractRecord, no transaction, no ledger append: the second run
	// over an unchanged source does nothing but the cheap preview.

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.NoError(err)
	s.Equal(1, stats.Unchanged)
	s.Equal(0, stats.Added)
	s.Equal(0, stats.Updated)
	s.Equal(0, stats.Errors)
}

func (s *CrawlServiceTestSuite) TestCrawl_LedgerNotEmptyIsPreconditionFailure() {
	ctx := context.Background()

	s.ledger.EXPECT().Empty().Return(false, nil)

	stats, err := s.service.Crawl(ctx)

	s.Nil(stats)
	s.ErrorIs(err, ErrLedgerNotEmpty)
}

func (s *CrawlServiceTestSuite) TestCrawl_OneBadItemDoesNotAbortRun() {
	ctx := context.Background()
	links := []string{
		"https://example.com/billNavClient.xhtml?bill_id=201920200AB1",
		"https://example.com/billNavClient.xhtml?bill_id=201920200AB2",
		"https://example.com/billNavClient.xhtml?bill_id=201920200AB3",
	}

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return(links, nil)

	for i, link := range links {
		if i == 1 {
			s.source.EXPECT().ExtractPreview(ctx, link).Return(nil, errors.New("status page unreachable"))
			continue
		}

		key := billID(link)
		pv := &domain.BillPreview{IdentityKey: key, LastActionDate: "2020-03-02"}
		rec := &domain.BillRecord{IdentityKey: key, LastActionDate: "2020-03-02"}

		s.source.EXPECT().ExtractPreview(ctx, link).Return(pv, nil)
		s.bills.EXPECT().GetByIdentityKey(ctx, key).Return(nil, nil)
		s.source.EXPECT().ExtractRecord(ctx, pv).Return(rec, nil)
		s.runTransaction()
		s.bills.EXPECT().Insert(gomock.Any(), rec, false).Return(nil)

		event := domain.ChangeEvent{Action: domain.ActionAdded, IdentityKey: key}
		s.ledger.EXPECT().Append(event).Return(nil)
		s.changeLog.EXPECT().Record(event).Return(nil)
		s.publisher.EXPECT().Publish(gomock.Any(), rec, event).Return(nil)
	}

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.NoError(err)
	s.Equal(3, stats.Discovered)
	s.Equal(2, stats.Added)
	s.Equal(1, stats.Errors)
}

func (s *CrawlServiceTestSuite) TestCrawl_LedgerWriteFailureIsFatal() {
	ctx := context.Background()
	link := "https://example.com/billNavClient.xhtml?bill_id=201920200AB1"

	pv := &domain.BillPreview{IdentityKey: "201920200AB1", LastActionDate: "2020-03-02"}
	rec := &domain.BillRecord{IdentityKey: "201920200AB1", LastActionDate: "2020-03-02"}

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return([]string{link}, nil)
	s.source.EXPECT().ExtractPreview(ctx, link).Return(pv, nil)
	s.bills.EXPECT().GetByIdentityKey(ctx, "201920200AB1").Return(nil, nil)
	s.source.EXPECT().ExtractRecord(ctx, pv).Return(rec, nil)
	s.runTransaction()
	s.bills.EXPECT().Insert(gomock.Any(), rec, false).Return(nil)

	ledgerErr := errors.New("disk full")
	s.ledger.EXPECT().Append(gomock.Any()).Return(ledgerErr)

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.ErrorIs(err, ledgerErr)
	s.NotNil(stats)
	s.Equal(0, stats.Added)
}

func (s *CrawlServiceTestSuite) TestCrawl_PaginationFailureStillDrainsCollectedLinks() {
	ctx := context.Background()
	link := "https://example.com/billNavClient.xhtml?bill_id=201920200AB1"

	pv := &domain.BillPreview{IdentityKey: "201920200AB1", LastActionDate: "2020-03-02"}
	stored := &domain.BillRecord{IdentityKey: "201920200AB1", LastActionDate: "2020-03-02"}

	pageErr := errors.New("page 3: pagination continuation token missing")

	s.ledger.EXPECT().Empty().Return(true, nil)
	s.source.EXPECT().CollectLinks(ctx, s.query, -1).Return([]string{link}, pageErr)
	s.source.EXPECT().ExtractPreview(ctx, link).Return(pv, nil)
	s.bills.EXPECT().GetByIdentityKey(ctx, "201920200AB1").Return(stored, nil)

	s.expectCrawlState()

	stats, err := s.service.Crawl(ctx)

	s.ErrorIs(err, pageErr)
	s.Equal(1, stats.Discovered)
	s.Equal(1, stats.Unchanged)
}

// billID extracts the bill id from a test link the same way the source
// does, so expectations line up.
func billID(link string) string {
	_, key, _ := strings.Cut(link, "bill_id=")
	return key
}
