package internal

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// Aggregator discovers books shared across users' wishlists.
//
// Work happens in two phases: first every selected user's list is
// collected without page counts, then only the books popular enough to
// survive the threshold are enriched with expensive detail lookups.
// Computations for the same cache key run inside a singleflight group so
// concurrent requests do the work at most once.
type Aggregator struct {
	memo  *Memo
	disk  *DiskCache
	group singleflight.Group

	metrics *aggregatorMetrics
}

// AggregateResult is a completed aggregation: the surviving records plus
// any users that couldn't contribute. Callers must treat it as read-only.
type AggregateResult struct {
	Books       []BookRecord `json:"books"`
	FailedUsers []string     `json:"failed_users,omitempty"`
}

// NewAggregator creates an aggregation engine over the given caches.
func NewAggregator(memo *Memo, disk *DiskCache, reg *prometheus.Registry) *Aggregator {
	return &Aggregator{
		memo:    memo,
		disk:    disk,
		metrics: newAggregatorMetrics(reg),
	}
}

// FindPopularBooks returns books wishlisted by at least minCount of the
// selected users, most popular first. An empty selection means all known
// users. With useCache set, a fresh-enough previous result under the same
// key short-circuits all collection and enrichment work.
func (a *Aggregator) FindPopularBooks(ctx context.Context, allUsers map[string]string, minCount int, selected []string, useCache bool) (*AggregateResult, error) {
	if len(selected) == 0 {
		selected = slices.Sorted(maps.Keys(allUsers))
	}

	if !useCache {
		return a.compute(ctx, allUsers, minCount, selected, false)
	}

	key := CacheKey(selected, minCount)
	if records, ok := a.disk.Get(ctx, key); ok {
		return &AggregateResult{Books: records}, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		// A concurrent caller may have finished while we waited.
		if records, ok := a.disk.Get(ctx, key); ok {
			return &AggregateResult{Books: records}, nil
		}
		return a.compute(ctx, allUsers, minCount, selected, true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AggregateResult), nil
}

// ClearAllCaches purges the memoization layer and the disk cache.
// In-flight computations may still complete and write an entry; readers
// racing the clear see a miss, never an error.
func (a *Aggregator) ClearAllCaches(ctx context.Context) bool {
	a.memo.ClearAll()
	return a.disk.Clear(ctx)
}

// CacheLookup exposes raw cache reads so callers can report provenance.
func (a *Aggregator) CacheLookup(ctx context.Context, key string) ([]BookRecord, bool) {
	return a.disk.Get(ctx, key)
}

func (a *Aggregator) compute(ctx context.Context, allUsers map[string]string, minCount int, selected []string, writeCache bool) (*AggregateResult, error) {
	a.metrics.runInc()

	records := map[bookKey]*BookRecord{}
	var order []bookKey // First-seen order of books.
	var processed, failed []string

	// Phase 1: collect every selected user's list without page counts.
	Log(ctx).Info("collecting wishlists", "users", len(selected), "minCount", minCount)
	for _, name := range selected {
		id, ok := allUsers[name]
		if !ok {
			Log(ctx).Warn("skipping unknown user", "user", name)
			failed = append(failed, name)
			continue
		}

		stubs, err := a.memo.Wishlist(ctx, id, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			Log(ctx).Warn("problem fetching wishlist", "user", name, "err", err)
			a.metrics.userFailedInc()
			failed = append(failed, name)
			continue
		}

		for _, stub := range stubs {
			key := bookKey{title: stub.Title, author: stub.Author}
			record, ok := records[key]
			if !ok {
				record = &BookRecord{
					Title:  stub.Title,
					Author: stub.Author,
					URL:    stub.URL,
				}
				records[key] = record
				order = append(order, key)
			}
			record.Users = append(record.Users, name)
		}
		processed = append(processed, name)
	}
	Log(ctx).Info("collected wishlists", "processed", len(processed), "failed", len(failed))

	// Keep only books popular enough to be worth enriching, most popular
	// first. Ties keep their first-seen order, so the result is stable
	// run to run for identical input.
	popular := []BookRecord{}
	for _, key := range order {
		record := records[key]
		if len(record.Users) >= minCount {
			record.UserCount = len(record.Users)
			popular = append(popular, *record)
		}
	}
	slices.SortStableFunc(popular, func(x, y BookRecord) int {
		return cmp.Compare(y.UserCount, x.UserCount)
	})

	// Phase 2: page counts only for the survivors.
	Log(ctx).Info("enriching popular books", "count", len(popular))
	for i := range popular {
		n, err := a.memo.PageCount(ctx, popular[i].URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			Log(ctx).Warn("problem fetching page count", "url", popular[i].URL, "err", err)
			continue
		}
		popular[i].PageCount = n
		a.metrics.enrichedInc()
	}

	// Only a fully enriched result is cache-eligible; a cancelled
	// context must never persist partial data.
	if writeCache && ctx.Err() == nil {
		a.disk.Put(ctx, CacheKey(selected, minCount), popular)
	}

	return &AggregateResult{Books: popular, FailedUsers: failed}, nil
}
