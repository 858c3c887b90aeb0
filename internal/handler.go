package internal

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	_defaultMinCount = 3
	_defaultTopN     = 50
)

// Handler serves the book discovery API.
type Handler struct {
	roster *Roster
	agg    *Aggregator
	ranker *Ranker
	disk   *DiskCache
}

// NewHandler wires the HTTP surface to the aggregation and ranking
// engines.
func NewHandler(roster *Roster, agg *Aggregator, ranker *Ranker, disk *DiskCache) *Handler {
	return &Handler{roster: roster, agg: agg, ranker: ranker, disk: disk}
}

// Index returns a small service banner so health checks have something
// to poke.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"service": "bookclub",
		"status":  "ok",
	})
}

// PopularBooks aggregates to-read shelves across users and returns
// books wanted by at least min_count of them.
func (h *Handler) PopularBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	minCount := _defaultMinCount
	if raw := q.Get("min_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid min_count %q", raw))
			return
		}
		minCount = n
	}

	useCache := true
	if raw := q.Get("use_cache"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			httpError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid use_cache %q", raw))
			return
		}
		useCache = b
	}

	all := h.roster.Users()

	// The parameter may repeat (?users=a&users=b) and each value may
	// itself hold a comma-separated list.
	var selected []string
	for _, raw := range q["users"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := all[name]; !ok {
				httpError(ctx, w, http.StatusBadRequest, fmt.Sprintf("unknown user %q", name))
				return
			}
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		selected = slices.Sorted(maps.Keys(all))
	}

	// Peek at the disk cache up front so the response can say whether
	// it was served from cache. The engine re-checks under
	// singleflight, so this stays consistent.
	meta := responseMetadata{}
	if useCache {
		key := CacheKey(selected, minCount)
		meta.CacheKey = &key
		_, meta.FromCache = h.agg.CacheLookup(ctx, key)
	}

	result, err := h.agg.FindPopularBooks(ctx, all, minCount, selected, useCache)
	if err != nil {
		Log(ctx).Error("aggregation failed", "err", err)
		httpError(ctx, w, http.StatusInternalServerError, "failed to aggregate wishlists")
		return
	}
	meta.Timestamp = time.Now().UTC()

	writeJSON(ctx, w, http.StatusOK, popularResponse{
		Books:       result.Books,
		Count:       len(result.Books),
		FailedUsers: result.FailedUsers,
		MinCount:    minCount,
		Users:       selected,
		Metadata:    meta,
	})
}

type popularResponse struct {
	Books       []BookRecord     `json:"books"`
	Count       int              `json:"count"`
	FailedUsers []string         `json:"failed_users,omitempty"`
	MinCount    int              `json:"min_count"`
	Users       []string         `json:"users"`
	Metadata    responseMetadata `json:"metadata"`
}

// responseMetadata reports cache provenance. CacheKey is null when the
// query bypassed the cache.
type responseMetadata struct {
	FromCache bool      `json:"from_cache"`
	CacheKey  *string   `json:"cache_key"`
	Timestamp time.Time `json:"timestamp"`
}

// TopBooks returns one user's to-read shelf ranked by rating per page.
func (h *Handler) TopBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	name := q.Get("username")
	if name == "" {
		httpError(ctx, w, http.StatusBadRequest, "missing username")
		return
	}

	userID, ok := h.roster.Lookup(name)
	if !ok {
		httpError(ctx, w, http.StatusBadRequest, fmt.Sprintf("unknown user %q", name))
		return
	}

	topN := _defaultTopN
	if raw := q.Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpError(ctx, w, http.StatusBadRequest, fmt.Sprintf("invalid top_n %q", raw))
			return
		}
		topN = n
	}

	entries, err := h.ranker.TopBooks(ctx, userID, topN)
	if err != nil {
		Log(ctx).Error("ranking failed", "user", name, "err", err)
		httpError(ctx, w, http.StatusInternalServerError, "failed to rank wishlist")
		return
	}

	writeJSON(ctx, w, http.StatusOK, topResponse{
		Books:    entries,
		Count:    len(entries),
		Username: name,
	})
}

type topResponse struct {
	Books    []RankedEntry `json:"books"`
	Count    int           `json:"count"`
	Username string        `json:"username"`
}

// ListUsers returns the current roster.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]map[string]string{
		"users": h.roster.Users(),
	})
}

type userRequest struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// AddUser registers a new user and invalidates cached aggregations,
// since the default user set just changed.
func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(ctx, w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ID = strings.TrimSpace(req.ID)
	if req.Name == "" || req.ID == "" {
		httpError(ctx, w, http.StatusBadRequest, "name and id are required")
		return
	}

	if err := h.roster.Add(req.Name, req.ID); err != nil {
		httpError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.agg.ClearAllCaches(ctx) {
		Log(ctx).Warn("cache invalidation failed after user add", "user", req.Name)
	}

	writeJSON(ctx, w, http.StatusCreated, map[string]map[string]string{
		"users": h.roster.Users(),
	})
}

type deleteRequest struct {
	Names []string `json:"names"`
}

// DeleteUsers removes users from the roster and invalidates cached
// aggregations.
func (h *Handler) DeleteUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(ctx, w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Names) == 0 {
		httpError(ctx, w, http.StatusBadRequest, "names are required")
		return
	}

	deleted, err := h.roster.Delete(req.Names...)
	if err != nil {
		Log(ctx).Error("roster delete failed", "err", err)
		httpError(ctx, w, http.StatusInternalServerError, "failed to persist roster")
		return
	}

	if len(deleted) > 0 && !h.agg.ClearAllCaches(ctx) {
		Log(ctx).Warn("cache invalidation failed after user delete")
	}

	writeJSON(ctx, w, http.StatusOK, deleteResponse{
		Deleted: deleted,
		Users:   h.roster.Users(),
	})
}

type deleteResponse struct {
	Deleted []string          `json:"deleted"`
	Users   map[string]string `json:"users"`
}

// ClearCache drops every cached aggregation and memoized fetch.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.agg.ClearAllCaches(ctx) {
		httpError(ctx, w, http.StatusInternalServerError, "failed to clear caches")
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{
		"status": "cache cleared",
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Log(ctx).Warn("response encode failed", "err", err)
	}
}

func httpError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, map[string]string{"error": msg})
}
