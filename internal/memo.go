package internal

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// Memoization bounds. The set of distinct popular books is larger than
// the set of users, so the page-count cache gets more room.
const (
	_wishlistCacheSize  = 32
	_pageCountCacheSize = 128
)

type wishlistKey struct {
	userID         string
	withPageCounts bool
}

// Memo caches expensive source lookups for the lifetime of the process.
// A hit returns exactly what was stored; entries never expire by time and
// only leave when evicted by capacity or when the cache is cleared.
//
// Lookups for the same key are coalesced so concurrent callers don't
// duplicate a fetch.
type Memo struct {
	source source

	wishlists  *lru.Cache[wishlistKey, []WishlistStub]
	pageCounts *lru.Cache[string, *int]
	group      singleflight.Group

	metrics *cacheMetrics
}

// NewMemo creates a memoization layer over src.
func NewMemo(src source, reg *prometheus.Registry) (*Memo, error) {
	wishlists, err := lru.New[wishlistKey, []WishlistStub](_wishlistCacheSize)
	if err != nil {
		return nil, err
	}
	pageCounts, err := lru.New[string, *int](_pageCountCacheSize)
	if err != nil {
		return nil, err
	}
	return &Memo{
		source:     src,
		wishlists:  wishlists,
		pageCounts: pageCounts,
		metrics:    newCacheMetrics(reg, "memo"),
	}, nil
}

// Wishlist returns the user's complete to-read list, fetching it at most
// once per process unless the cache is cleared. With withPageCounts set,
// every stub is also enriched with a (memoized) page count.
func (m *Memo) Wishlist(ctx context.Context, userID string, withPageCounts bool) ([]WishlistStub, error) {
	key := wishlistKey{userID: userID, withPageCounts: withPageCounts}
	if stubs, ok := m.wishlists.Get(key); ok {
		m.metrics.hitInc()
		return stubs, nil
	}
	m.metrics.missInc()

	v, err, _ := m.group.Do("wishlist:"+userID+":"+strconv.FormatBool(withPageCounts), func() (any, error) {
		if stubs, ok := m.wishlists.Get(key); ok {
			return stubs, nil
		}
		stubs, err := m.fetchWishlist(ctx, userID, withPageCounts)
		if err != nil {
			return nil, err
		}
		m.wishlists.Add(key, stubs)
		return stubs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]WishlistStub), nil
}

// PageCount returns a book's page count by its detail URL. A nil count
// (the page exposes none) is cached; fetch failures are not, so a later
// call can retry.
func (m *Memo) PageCount(ctx context.Context, url string) (*int, error) {
	if n, ok := m.pageCounts.Get(url); ok {
		m.metrics.hitInc()
		return n, nil
	}
	m.metrics.missInc()

	v, err, _ := m.group.Do("pagecount:"+url, func() (any, error) {
		if n, ok := m.pageCounts.Get(url); ok {
			return n, nil
		}
		n, err := m.source.GetBookDetail(ctx, url)
		if err != nil {
			return nil, err
		}
		m.pageCounts.Add(url, n)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*int), nil
}

// ClearAll evicts every entry from both caches.
func (m *Memo) ClearAll() {
	m.wishlists.Purge()
	m.pageCounts.Purge()
}

func (m *Memo) fetchWishlist(ctx context.Context, userID string, withPageCounts bool) ([]WishlistStub, error) {
	Log(ctx).Debug("fetching wishlist", "userID", userID, "withPageCounts", withPageCounts)

	stubs, err := collectWishlist(ctx, m.source, userID)
	if err != nil {
		return nil, err
	}

	if withPageCounts {
		for i := range stubs {
			n, err := m.PageCount(ctx, stubs[i].URL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				Log(ctx).Warn("problem fetching page count", "url", stubs[i].URL, "err", err)
				continue
			}
			stubs[i].PageCount = n
		}
	}

	return stubs, nil
}
