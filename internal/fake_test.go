package internal

import (
	"context"
	"fmt"
	"sync"
)

// fakeSource serves canned wishlists and page counts while counting how
// often each lookup happens.
type fakeSource struct {
	mu sync.Mutex

	// wishlists maps userID to shelf pages. Each outer slice element is
	// one page of stubs.
	wishlists map[string][][]WishlistStub

	// pageCounts maps detail URL to page count. A missing URL behaves
	// like a detail page without the page-count markup.
	pageCounts map[string]int

	// listErrs forces ListWishlistPage to fail for a user.
	listErrs map[string]error

	// detailErrs forces GetBookDetail to fail for a URL.
	detailErrs map[string]error

	listCalls   int
	detailCalls int
}

var _ source = (*fakeSource)(nil)

func (f *fakeSource) ListWishlistPage(ctx context.Context, userID string, page int) ([]WishlistStub, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if err := f.listErrs[userID]; err != nil {
		return nil, false, err
	}

	pages, ok := f.wishlists[userID]
	if !ok {
		return nil, false, fmt.Errorf("no such user %q", userID)
	}
	if page > len(pages) {
		return nil, false, nil
	}
	return pages[page-1], page < len(pages), nil
}

func (f *fakeSource) GetBookDetail(ctx context.Context, url string) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++

	if err := f.detailErrs[url]; err != nil {
		return nil, err
	}

	n, ok := f.pageCounts[url]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (f *fakeSource) calls() (list, detail int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.detailCalls
}

func stub(title string, rating float64) WishlistStub {
	return WishlistStub{
		Title:  title,
		Author: "Author of " + title,
		Rating: rating,
		URL:    "https://example.com/book/" + title,
	}
}
