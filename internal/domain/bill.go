package domain

import "time"

// BillRecord is one snapshot of a legislative bill. IdentityKey is the
// stable id the source embeds in detail-page URLs; every other field is
// overwritten in place when the bill changes. Dates are ISO "YYYY-MM-DD"
// strings, empty when the source omitted or failed to render them.
type BillRecord struct {
	ID             int64     `db:"id"`
	IdentityKey    string    `db:"identity_key"`
	Code           string    `db:"code"`
	SessionLabel   string    `db:"session_label"`
	Subject        string    `db:"subject"`
	Title          string    `db:"title"`
	Chamber        string    `db:"chamber"`
	Authors        string    `db:"authors"`
	LastActionDate string    `db:"last_action_date"`
	LastActionName string    `db:"last_action_name"`
	FullText       string    `db:"full_text"`
	DatePublished  string    `db:"date_published"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// BillPreview is the cheap first phase of extraction: just enough of the
// status page to classify the bill, plus the raw page so the full parse
// does not refetch it.
type BillPreview struct {
	IdentityKey    string
	Link           string
	LastActionDate string
	LastActionName string
	StatusHTML     []byte
}

// ChangeAction is the kind of an accepted change.
type ChangeAction string

const (
	ActionAdded   ChangeAction = "added"
	ActionUpdated ChangeAction = "updated"
)

// ChangeEvent is one classified crawl outcome. PrevActionName is set only
// for updated bills; the notifier renders it as an "old action -> new
// action" transition.
type ChangeEvent struct {
	Action         ChangeAction
	IdentityKey    string
	PrevActionName string
}
