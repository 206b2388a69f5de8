package leginfo

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"billwatch/internal/domain"
)

var (
	billIDRe        = regexp.MustCompile(`bill_id=([0-9A-Za-z-]+)`)
	billCodeRe      = regexp.MustCompile(`[A-Z]+-\d+`)
	sessionRe       = regexp.MustCompile(`\(((?:20|19)\d{2}-(?:20|19)\d{2})\)`)
	datePublishedRe = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// ExtractPreview fetches a bill's status page and parses only what
// classification needs: the identity key and the last action. The raw
// page rides along in the preview so ExtractRecord can finish the parse
// without refetching.
//
// The identity key comes from the link itself; a link without one fails
// before any network call.
func (s *Source) ExtractPreview(ctx context.Context, link string) (*domain.BillPreview, error) {
	m := billIDRe.FindStringSubmatch(link)
	if m == nil {
		return nil, &ExtractError{Link: link, Err: fmt.Errorf("no bill id in link")}
	}
	key := m[1]

	statusURL := s.statusURL + "?bill_id=" + key

	var body []byte
	err := s.retry.Do(ctx, s.logger, "fetch bill status", func() error {
		raw, err := s.client.Get(ctx, statusURL, nil)
		if err != nil {
			return err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			return &DecodeError{Reason: fmt.Sprintf("parse status page: %v", err)}
		}
		if doc.Find("div#bill_status").Length() == 0 {
			return &DecodeError{Reason: "status page anchor missing"}
		}

		body = raw
		return nil
	})
	if err != nil {
		return nil, &ExtractError{IdentityKey: key, Link: link, Err: err}
	}

	doc, _ := goquery.NewDocumentFromReader(bytes.NewReader(body))

	preview := &domain.BillPreview{
		IdentityKey: key,
		Link:        link,
		StatusHTML:  body,
	}
	preview.LastActionDate = s.parseLastActionDate(doc, key)

	name := strings.TrimSpace(doc.Find(`label[for="lastAction"]`).First().Text())
	preview.LastActionName = strings.ReplaceAll(name, ":", "")

	return preview, nil
}

// ExtractRecord completes extraction for a bill whose preview classified
// as new or changed: the remaining status-page fields, then the text page.
// Status-page fields are best-effort individually; text extraction is
// best-effort as a whole.
func (s *Source) ExtractRecord(ctx context.Context, preview *domain.BillPreview) (*domain.BillRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(preview.StatusHTML))
	if err != nil {
		return nil, &ExtractError{IdentityKey: preview.IdentityKey, Err: fmt.Errorf("reparse status page: %w", err)}
	}

	rec := &domain.BillRecord{
		IdentityKey:    preview.IdentityKey,
		LastActionDate: preview.LastActionDate,
		LastActionName: preview.LastActionName,
	}

	rec.Title = elementByID(doc, "statusTitle")
	rec.Chamber = elementByID(doc, "houseLoc")
	rec.Authors = elementByID(doc, "leadAuthors")

	s.parseTitleBlock(doc, rec)
	s.extractText(ctx, rec)

	return rec, nil
}

// parseTitleBlock splits the #bill_title heading into code, session label
// and subject. Any piece that fails to parse is left empty.
func (s *Source) parseTitleBlock(doc *goquery.Document, rec *domain.BillRecord) {
	title := strings.TrimSpace(doc.Find("div#bill_title").Text())
	if title == "" {
		s.logger.Warn("bill title block missing", "identity_key", rec.IdentityKey)
		return
	}

	rec.Code = billCodeRe.FindString(title)

	if m := sessionRe.FindStringSubmatch(title); m != nil {
		rec.SessionLabel = m[1]
	}

	subject := title
	subject = strings.ReplaceAll(subject, rec.SessionLabel, "")
	subject = strings.ReplaceAll(subject, rec.Code, "")
	subject = strings.ReplaceAll(subject, "()", "")
	rec.Subject = strings.TrimSpace(subject)
}

// parseLastActionDate reads the lastAction element and reformats its
// two-digit-year date into ISO form. A parse failure leaves the field
// empty and logs the error; it never aborts the record.
func (s *Source) parseLastActionDate(doc *goquery.Document, key string) string {
	raw := elementByID(doc, "lastAction")
	if raw == "" {
		return ""
	}

	t, err := time.Parse("01/02/06", raw)
	if err != nil {
		derr := &DateParseError{Field: "last_action_date", Value: raw, Err: err}
		s.logger.Warn("bill date parse failed", "identity_key", key, "error", derr)
		return ""
	}

	return t.Format("2006-01-02")
}

// extractText fetches the text/versions page and fills FullText and
// DatePublished. Every failure in here degrades to empty fields.
func (s *Source) extractText(ctx context.Context, rec *domain.BillRecord) {
	textURL := s.textURL + "?bill_id=" + rec.IdentityKey

	raw, err := s.client.Get(ctx, textURL, nil)
	if err != nil {
		s.logger.Warn("bill text fetch failed", "identity_key", rec.IdentityKey, "error", err)
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		s.logger.Warn("bill text parse failed", "identity_key", rec.IdentityKey, "error", err)
		return
	}

	all := doc.Find("div#bill_all")
	if all.Length() == 0 {
		s.logger.Warn("bill text anchor missing", "identity_key", rec.IdentityKey)
		return
	}

	// Struck-through text is language removed by amendment.
	all.Find("strike").Remove()
	rec.FullText = normalizeText(all.Text())

	rec.DatePublished = s.parseDatePublished(doc, rec.IdentityKey)
}

func (s *Source) parseDatePublished(doc *goquery.Document, key string) string {
	var raw string
	doc.Find("span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if strings.Contains(text, "Date Published") {
			raw = datePublishedRe.FindString(text)
			return false
		}
		return true
	})
	if raw == "" {
		return ""
	}

	t, err := time.Parse("01/02/2006", raw)
	if err != nil {
		derr := &DateParseError{Field: "date_published", Value: raw, Err: err}
		s.logger.Warn("bill date parse failed", "identity_key", key, "error", derr)
		return ""
	}

	return t.Format("2006-01-02")
}

// elementByID returns the trimmed text of the span or div carrying the
// given id, or "" when absent. The source renders some attributes in
// spans and some in divs depending on the bill.
func elementByID(doc *goquery.Document, id string) string {
	return strings.TrimSpace(doc.Find("span#" + id + ", div#" + id).First().Text())
}

func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
