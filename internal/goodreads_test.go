package internal

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const _shelfPage = `<html><body><table id="books">
<tr class="bookalike review">
  <td class="field title"><div class="value"><a href="/book/show/1.Dune">Dune</a></div></td>
  <td class="field author"><div class="value"><a href="/author/1">Herbert, Frank</a></div></td>
  <td class="field avg_rating"><div class="value">4.27</div></td>
</tr>
<tr class="bookalike review">
  <td class="field title"><div class="value"><a href="https://other.example.com/book/2">Hyperion</a></div></td>
  <td class="field avg_rating"><div class="value">4.26</div></td>
</tr>
<tr class="bookalike review">
  <td class="field title"><div class="value"><a href="/book/show/3">Unrated</a></div></td>
  <td class="field avg_rating"><div class="value">really liked it</div></td>
</tr>
</table>%s</body></html>`

func newTestSource(t *testing.T) *GRSource {
	t.Helper()

	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	f := NewFetcher(client, nil)
	f.baseDelay = 0
	f.politeMin = 0
	f.politeMax = 0
	f.jitter = func() time.Duration { return 0 }

	return NewGRSource(f, "https://example.com")
}

func TestListWishlistPage(t *testing.T) {
	src := newTestSource(t)

	httpmock.RegisterResponder(http.MethodGet,
		"https://example.com/review/list/u1?per_page=100&shelf=to-read&page=1",
		httpmock.NewStringResponder(http.StatusOK, fmt.Sprintf(_shelfPage, "")))

	stubs, hasNext, err := src.ListWishlistPage(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.False(t, hasNext)
	require.Len(t, stubs, 3)

	assert.Equal(t, "Dune", stubs[0].Title)
	assert.Equal(t, "Herbert, Frank", stubs[0].Author)
	assert.Equal(t, 4.27, stubs[0].Rating)
	assert.Equal(t, "https://example.com/book/show/1.Dune", stubs[0].URL)

	// Absolute links pass through untouched, missing author defaults.
	assert.Equal(t, "https://other.example.com/book/2", stubs[1].URL)
	assert.Equal(t, "Unknown", stubs[1].Author)

	// Unparseable rating stays at zero.
	assert.Equal(t, 0.0, stubs[2].Rating)
}

func TestListWishlistPagePagination(t *testing.T) {
	src := newTestSource(t)

	httpmock.RegisterResponder(http.MethodGet,
		"https://example.com/review/list/u1?per_page=100&shelf=to-read&page=1",
		httpmock.NewStringResponder(http.StatusOK,
			fmt.Sprintf(_shelfPage, `<a rel="next" href="?page=2">next</a>`)))

	_, hasNext, err := src.ListWishlistPage(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.True(t, hasNext)
}

func TestGetBookDetail(t *testing.T) {
	src := newTestSource(t)

	httpmock.RegisterResponder(http.MethodGet, "https://example.com/book/show/1",
		httpmock.NewStringResponder(http.StatusOK,
			`<html><body><p data-testid="pagesFormat">412 pages, Hardcover</p></body></html>`))

	n, err := src.GetBookDetail(context.Background(), "https://example.com/book/show/1")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 412, *n)
}

func TestGetBookDetailMissingMarkup(t *testing.T) {
	src := newTestSource(t)

	httpmock.RegisterResponder(http.MethodGet, "https://example.com/book/show/2",
		httpmock.NewStringResponder(http.StatusOK, `<html><body><p>Audiobook</p></body></html>`))

	n, err := src.GetBookDetail(context.Background(), "https://example.com/book/show/2")
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestParsePageCount(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want *int
	}{
		{"412 pages, Hardcover", ptr(412)},
		{"1 Page", ptr(1)},
		{"Paperback, 86 pages", ptr(86)},
		{"Kindle Edition 203", ptr(203)},
		{"Audiobook", nil},
		{"", nil},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got := parsePageCount(tc.in)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestCollectWishlistPartialFailure(t *testing.T) {
	ctx := context.Background()

	pages := [][]WishlistStub{
		{stub("A", 4.0), stub("B", 3.5)},
		{stub("C", 4.5)},
	}
	src := &pagedSource{pages: pages, failAfter: 2}

	// Page 1 succeeds, page 2 fails. The first page's stubs survive.
	got, err := collectWishlist(ctx, src, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// A first-page failure fails the whole listing.
	src = &pagedSource{pages: pages, failAfter: 1}
	_, err = collectWishlist(ctx, src, "u1")
	require.Error(t, err)
}

// pagedSource fails on the Nth page request.
type pagedSource struct {
	pages     [][]WishlistStub
	failAfter int
	calls     int
}

func (p *pagedSource) ListWishlistPage(ctx context.Context, userID string, page int) ([]WishlistStub, bool, error) {
	p.calls++
	if p.calls >= p.failAfter {
		return nil, false, fmt.Errorf("boom")
	}
	return p.pages[page-1], page < len(p.pages), nil
}

func (p *pagedSource) GetBookDetail(ctx context.Context, url string) (*int, error) {
	return nil, nil
}

func ptr(n int) *int { return &n }
