package internal

import (
	"cmp"
	"context"
	"slices"
)

// _defaultPageCount stands in when a book's page count is missing or
// nonsensical, so scores stay finite and comparable.
const _defaultPageCount = 200

// Ranker scores a single user's wishlist, rewarding short and highly
// rated books.
type Ranker struct {
	source source
}

// NewRanker creates a ranking engine over src.
func NewRanker(src source) *Ranker {
	return &Ranker{source: src}
}

// TopBooks returns up to topN entries from the user's wishlist ordered by
// score, with 1-based ranks assigned in final order. This path always
// re-fetches: it consults no caches.
//
// A book whose detail lookup fails is kept with the default page count
// rather than dropped.
func (r *Ranker) TopBooks(ctx context.Context, userID string, topN int) ([]RankedEntry, error) {
	stubs, err := collectWishlist(ctx, r.source, userID)
	if err != nil {
		return nil, err
	}
	Log(ctx).Info("scoring wishlist", "userID", userID, "books", len(stubs))

	entries := make([]RankedEntry, 0, len(stubs))
	for _, stub := range stubs {
		entry := RankedEntry{
			Title:  stub.Title,
			Author: stub.Author,
			Rating: stub.Rating,
			URL:    stub.URL,
		}

		n, err := r.source.GetBookDetail(ctx, stub.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			Log(ctx).Warn("problem fetching page count", "url", stub.URL, "err", err)
		} else {
			entry.PageCount = n
		}

		entry.Score = Score(entry.Rating, entry.PageCount)
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(x, y RankedEntry) int {
		return cmp.Compare(y.Score, x.Score)
	})

	if topN >= 0 && topN < len(entries) {
		entries = entries[:topN]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Score favors shorter, higher rated books. Missing or non-positive page
// counts fall back to the default; an unusable rating scores zero.
func Score(rating float64, pageCount *int) float64 {
	pages := _defaultPageCount
	if pageCount != nil && *pageCount > 0 {
		pages = *pageCount
	}
	if rating <= 0 {
		return 0
	}
	return rating / float64(pages)
}
