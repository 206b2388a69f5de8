package service

import "billwatch/internal/domain"

// Classification is the outcome of comparing a freshly previewed bill
// against its stored counterpart.
type Classification int

const (
	// Unseen means no stored record exists for the identity key.
	Unseen Classification = iota
	// Changed means the last action date differs from the stored one.
	Changed
	// Unchanged means the last action date matches; deeper parsing and
	// the text fetch are skipped entirely.
	Unchanged
)

func (c Classification) String() string {
	switch c {
	case Unseen:
		return "unseen"
	case Changed:
		return "changed"
	default:
		return "unchanged"
	}
}

// Classify compares only the last action date. Most bills have no new
// action between runs, so this single comparison is what keeps repeated
// crawls cheap: Unchanged short-circuits everything downstream of the
// status preview.
func Classify(fresh *domain.BillPreview, stored *domain.BillRecord) Classification {
	if stored == nil {
		return Unseen
	}
	if fresh.LastActionDate == stored.LastActionDate {
		return Unchanged
	}
	return Changed
}
