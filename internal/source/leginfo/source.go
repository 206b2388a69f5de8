package leginfo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"billwatch/internal/domain"
)

const (
	SourceID   = "ca_leginfo"
	SourceName = "California Legislative Information"
)

// Config holds source configuration.
type Config struct {
	SearchURL      string
	StatusURL      string
	TextURL        string
	SiteURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source talks to the bill search site: one session, sequential page
// traversal, two detail endpoints per bill.
type Source struct {
	client    *Client
	retry     RetryPolicy
	searchURL string
	statusURL string
	textURL   string
	siteURL   string
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		client: NewClient(cfg.Timeout),
		retry: RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		},
		searchURL: cfg.SearchURL,
		statusURL: cfg.StatusURL,
		textURL:   cfg.TextURL,
		siteURL:   cfg.SiteURL,
		logger:    logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// PageCursor is the pagination state threaded through one crawl session.
// The token from each response must be echoed verbatim on the next
// request; there is no way to reach page N+1 without it.
type PageCursor struct {
	Current int
	Total   int
	Token   string
}

// CollectLinks runs the search and walks result pages until the budget's
// worth of detail links is collected. budget -1 means every page the
// source reports.
//
// On a mid-pagination failure the links gathered so far are returned
// alongside the error; they are still worth draining.
func (s *Source) CollectLinks(ctx context.Context, query domain.Query, budget int) ([]string, error) {
	params := searchParams(query)

	var raw []byte
	err := s.retry.Do(ctx, s.logger, "fetch search page", func() error {
		var ferr error
		raw, ferr = s.client.Get(ctx, s.searchURL, params)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("initial query: %w", err)
	}

	page, err := DecodePage(raw, s.siteURL)
	if err != nil {
		return nil, fmt.Errorf("initial query: %w", err)
	}

	if page.Pagination == nil {
		links := page.Links
		if budget >= 0 && len(links) > budget {
			links = links[:budget]
		}
		s.logger.Debug("single results page", "links", len(links))
		return links, nil
	}

	return s.walkPages(ctx, params, page.Pagination, budget)
}

// walkPages submits the paging form for each page in turn, carrying the
// previous response's token. Page one is refetched through the form as
// well; the initial GET's rows use a different layout and only establish
// the cursor.
func (s *Source) walkPages(ctx context.Context, params url.Values, pg *Pagination, budget int) ([]string, error) {
	cursor := PageCursor{Current: 1, Total: pg.Total, Token: pg.Token}

	maxItems := cursor.Total * rowsPerPage
	if budget < 0 || budget > maxItems {
		budget = maxItems
	}
	lastPage := (budget + rowsPerPage - 1) / rowsPerPage

	var links []string
	for cursor.Current <= lastPage {
		form := pagingForm(params, cursor)

		var raw []byte
		err := s.retry.Do(ctx, s.logger, "fetch results page", func() error {
			var ferr error
			raw, ferr = s.client.PostForm(ctx, s.searchURL, form)
			return ferr
		})
		if err != nil {
			return links, fmt.Errorf("fetch page %d: %w", cursor.Current, err)
		}

		page, err := DecodePage(raw, s.siteURL)
		if err != nil {
			return links, fmt.Errorf("decode page %d: %w", cursor.Current, err)
		}

		for _, link := range page.Links {
			if len(links) == budget {
				break
			}
			links = append(links, link)
		}

		s.logger.Debug("fetched results page",
			"page", cursor.Current,
			"links", len(page.Links),
			"total", len(links),
		)

		if cursor.Current == lastPage {
			break
		}
		if page.Pagination == nil {
			return links, fmt.Errorf("page %d: %w", cursor.Current, ErrTokenLost)
		}

		cursor.Token = page.Pagination.Token
		cursor.Current++
	}

	return links, nil
}

// searchParams maps a query onto the search endpoint's parameters,
// normalizing the formats the source insists on: session year and bill
// number without dashes.
func searchParams(q domain.Query) url.Values {
	return url.Values{
		"house":         {q.House},
		"session_year":  {strings.ReplaceAll(q.SessionYear, "-", "")},
		"lawCode":       {q.LawCode},
		"keyword":       {q.Keyword},
		"bill_number":   {strings.ReplaceAll(q.BillNumber, "-", "")},
		"author":        {"All"},
		"chapterYear":   {q.StatuteYear},
		"chapterNumber": {q.ChapterNumber},
	}
}

// pagingForm builds the POST body for one page request. The source
// requires the original query's fields to be echoed as hidden form values
// on every page, along with the continuation token; dropping any of them
// returns an empty or mismatched result set.
func pagingForm(params url.Values, cursor PageCursor) url.Values {
	return url.Values{
		"dataNavForm":                   {"dataNavForm"},
		"dataNavForm:hidden_keyword":    {params.Get("keyword")},
		"dataNavForm:hidden_sess_yr":    {params.Get("session_year")},
		"dataNavForm:hidden_bill_nbr":   {params.Get("bill_number")},
		"dataNavForm:hidden_house":      {params.Get("house")},
		"dataNavForm:hidden_author":     {"All"},
		"dataNavForm:hidden_nextTen":    {"NextTen"},
		"dataNavForm:hidden_page_index": {strconv.Itoa(cursor.Current)},
		"dataNavForm:go_to_page":        {strconv.Itoa(cursor.Current)},
		"javax.faces.ViewState":         {cursor.Token},
	}
}
