package internal

import "time"

// WishlistStub is one entry of a user's to-read shelf before enrichment.
// Rating is only populated by the richer listing used for ranking, and
// PageCount only when a caller asked for page counts up front.
type WishlistStub struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Rating    float64 `json:"rating,omitempty"`
	PageCount *int    `json:"page_count,omitempty"`
	URL       string  `json:"url"`
}

// bookKey identifies a book across shelves. Two stubs with the same title
// and author are the same book regardless of which user listed them.
type bookKey struct {
	title  string
	author string
}

// BookRecord is a book that survived aggregation. Users holds contributing
// user names in discovery order.
type BookRecord struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	PageCount *int     `json:"page_count"`
	URL       string   `json:"url"`
	Users     []string `json:"users"`
	UserCount int      `json:"user_count"`
}

// RankedEntry is one scored entry of a user's wishlist. Rank is 1-based.
type RankedEntry struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Rating    float64 `json:"rating"`
	PageCount *int    `json:"page_count"`
	Score     float64 `json:"score"`
	URL       string  `json:"url"`
	Rank      int     `json:"rank"`
}

// cacheEntry is the on-disk envelope for a cached aggregation result.
type cacheEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	Data      []BookRecord `json:"data"`
}
