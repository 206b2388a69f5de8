package leginfo

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rowsPerPage is fixed by the source: every paginated results page
// carries ten rows.
const rowsPerPage = 10

const viewStateSelector = `input[id="j_id1:javax.faces.ViewState:3"]`

var pagesRe = regexp.MustCompile(`Page (\d+) of (\d+) pages`)

// Pagination is the paginated half of a decoded page: the opaque
// view-state token the next request must echo, and the source's page
// numbering from the "Page X of Y pages" banner.
type Pagination struct {
	Token   string
	Current int
	Total   int
}

// Page is one decoded results page. Pagination is nil when the result set
// fits in a single response. An empty Links slice with no error is a
// valid zero-result page, not a failure.
type Page struct {
	Links      []string
	Pagination *Pagination
}

// DecodePage interprets one raw results response. Links are made absolute
// against siteURL. Both known page shapes are handled: the flat results
// table of small result sets, and the banner-plus-token shape of
// paginated ones.
func DecodePage(raw []byte, siteURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("parse html: %v", err)}
	}

	links, err := decodeLinks(doc, siteURL)
	if err != nil {
		return nil, err
	}

	page := &Page{Links: links}

	banner := doc.Find("div#text_bill_returned")
	if banner.Length() == 0 {
		return page, nil
	}

	m := pagesRe.FindStringSubmatch(banner.Text())
	if m == nil {
		return nil, &DecodeError{Reason: "pagination banner present but page count not found"}
	}
	current, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])

	token, ok := doc.Find(viewStateSelector).Attr("value")
	if !ok || token == "" {
		return nil, ErrTokenLost
	}

	page.Pagination = &Pagination{
		Token:   token,
		Current: current,
		Total:   total,
	}

	return page, nil
}

// decodeLinks walks the results table. The initial search response uses
// table#bill_results with one anchor per row; posted paging responses
// wrap each row's anchor in div.commdataRow inside the first table.
func decodeLinks(doc *goquery.Document, siteURL string) ([]string, error) {
	table := doc.Find("table#bill_results")
	if table.Length() > 0 {
		return rowAnchors(table.Find("tbody > tr"), "a", siteURL), nil
	}

	table = doc.Find("table").First()
	if table.Length() == 0 {
		return nil, &DecodeError{Reason: "no results table"}
	}

	return rowAnchors(table.Find("tbody > tr"), "div.commdataRow > a", siteURL), nil
}

func rowAnchors(rows *goquery.Selection, anchorSelector, siteURL string) []string {
	links := make([]string, 0, rows.Length())

	rows.Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find(anchorSelector).First().Attr("href")
		if !ok {
			return
		}
		links = append(links, absoluteLink(siteURL, href))
	})

	return links
}

func absoluteLink(siteURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(siteURL, "/") + href
}
