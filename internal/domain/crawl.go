package domain

import "time"

// Query is one search against the bill source. Zero values mean the
// source's defaults ("Both" houses, "All" law codes, no filters).
type Query struct {
	Keyword       string
	SessionYear   string
	BillNumber    string
	House         string
	LawCode       string
	StatuteYear   string
	ChapterNumber string
}

// CrawlState tracks the engine's bookkeeping per query, across runs.
type CrawlState struct {
	ID            int64     `db:"id"`
	QueryKey      string    `db:"query_key"`
	LastCrawledAt time.Time `db:"last_crawled_at"`
	TotalAccepted int64     `db:"total_accepted"`
}

// CrawlStats summarizes one crawl run.
type CrawlStats struct {
	Discovered int
	Added      int
	Updated    int
	Unchanged  int
	Errors     int
	Published  int
	Duration   time.Duration
}
