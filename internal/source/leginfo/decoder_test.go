package leginfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSiteURL = "https://bills.example.com"

const unpaginatedPage = `<html><body>
<table id="bill_results"><tbody>
<tr>
  <td><a href="/faces/billNavClient.xhtml?bill_id=201920200AB100">AB-100</a></td>
  <td>School funding.</td><td>Gonzalez</td><td>Chaptered</td>
</tr>
<tr>
  <td><a href="/faces/billNavClient.xhtml?bill_id=201920200SB7">SB-7</a></td>
  <td>Water rights.</td><td>Portantino</td><td>In committee</td>
</tr>
</tbody></table>
</body></html>`

const paginatedFirstPage = `<html><body>
<div id="text_bill_returned">1021 bills returned.&nbsp;Page 1 of 103 pages.</div>
<input type="hidden" id="j_id1:javax.faces.ViewState:3" value="-3294761538933529591:7842369265479568012"/>
<table id="bill_results"><tbody>
<tr><td><a href="/faces/billNavClient.xhtml?bill_id=201920200AB1">AB-1</a></td><td>x</td><td>All</td><td>Introduced</td></tr>
</tbody></table>
</body></html>`

const postedResultsPage = `<html><body>
<div id="text_bill_returned">Page 2 of 103 pages.</div>
<input type="hidden" id="j_id1:javax.faces.ViewState:3" value="token-page-2"/>
<table><tbody>
<tr><td><div class="commdataRow"><a href="/faces/billNavClient.xhtml?bill_id=201920200AB11">&#187; AB-11</a></div></td></tr>
<tr><td><div class="commdataRow"><a href="/faces/billNavClient.xhtml?bill_id=201920200AB12">&#187; AB-12</a></div></td></tr>
</tbody></table>
</body></html>`

func TestDecodePage_Unpaginated(t *testing.T) {
	page, err := DecodePage([]byte(unpaginatedPage), testSiteURL)
	require.NoError(t, err)

	assert.Nil(t, page.Pagination)
	assert.Equal(t, []string{
		testSiteURL + "/faces/billNavClient.xhtml?bill_id=201920200AB100",
		testSiteURL + "/faces/billNavClient.xhtml?bill_id=201920200SB7",
	}, page.Links)
}

func TestDecodePage_PaginatedBannerAndToken(t *testing.T) {
	page, err := DecodePage([]byte(paginatedFirstPage), testSiteURL)
	require.NoError(t, err)

	require.NotNil(t, page.Pagination)
	assert.Equal(t, 1, page.Pagination.Current)
	assert.Equal(t, 103, page.Pagination.Total)
	assert.Equal(t, "-3294761538933529591:7842369265479568012", page.Pagination.Token)
}

func TestDecodePage_PostedPageShape(t *testing.T) {
	page, err := DecodePage([]byte(postedResultsPage), testSiteURL)
	require.NoError(t, err)

	require.NotNil(t, page.Pagination)
	assert.Equal(t, 2, page.Pagination.Current)
	assert.Equal(t, "token-page-2", page.Pagination.Token)
	assert.Equal(t, []string{
		testSiteURL + "/faces/billNavClient.xhtml?bill_id=201920200AB11",
		testSiteURL + "/faces/billNavClient.xhtml?bill_id=201920200AB12",
	}, page.Links)
}

func TestDecodePage_ZeroResultsIsNotAnError(t *testing.T) {
	html := `<html><body><table id="bill_results"><tbody></tbody></table></body></html>`

	page, err := DecodePage([]byte(html), testSiteURL)
	require.NoError(t, err)

	assert.Empty(t, page.Links)
	assert.Nil(t, page.Pagination)
}

func TestDecodePage_NoResultsTableIsDecodeError(t *testing.T) {
	html := `<html><body><p>Service temporarily unavailable</p></body></html>`

	_, err := DecodePage([]byte(html), testSiteURL)

	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodePage_MissingTokenIsTokenLoss(t *testing.T) {
	html := `<html><body>
<div id="text_bill_returned">Page 3 of 103 pages.</div>
<table><tbody>
<tr><td><div class="commdataRow"><a href="/faces/billNavClient.xhtml?bill_id=201920200AB20">AB-20</a></div></td></tr>
</tbody></table>
</body></html>`

	_, err := DecodePage([]byte(html), testSiteURL)

	assert.ErrorIs(t, err, ErrTokenLost)
}

func TestDecodePage_BannerWithoutPageCountIsDecodeError(t *testing.T) {
	html := `<html><body>
<div id="text_bill_returned">something unexpected</div>
<table id="bill_results"><tbody></tbody></table>
</body></html>`

	_, err := DecodePage([]byte(html), testSiteURL)

	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
