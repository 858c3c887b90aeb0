package internal

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// source is the page-content dependency the engines consume. Alternative
// implementations are injected in tests.
type source interface {
	// ListWishlistPage returns the stubs on one page of a user's to-read
	// shelf plus whether another page follows.
	ListWishlistPage(ctx context.Context, userID string, page int) ([]WishlistStub, bool, error)

	// GetBookDetail returns the page count from a book's detail page, or
	// nil when the page doesn't expose one.
	GetBookDetail(ctx context.Context, url string) (*int, error)
}

// GRSource scrapes wishlist data from the public shelf UI.
type GRSource struct {
	fetcher *Fetcher
	baseURL string
}

var _ source = (*GRSource)(nil)

// NewGRSource creates a source backed by the legacy shelf pages.
func NewGRSource(fetcher *Fetcher, baseURL string) *GRSource {
	return &GRSource{
		fetcher: fetcher,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// ListWishlistPage fetches and parses one page of a user's to-read shelf.
func (g *GRSource) ListWishlistPage(ctx context.Context, userID string, page int) ([]WishlistStub, bool, error) {
	url := fmt.Sprintf("%s/review/list/%s?per_page=100&shelf=to-read&page=%d", g.baseURL, userID, page)

	body, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, false, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("parsing shelf page: %w", err)
	}

	rows := htmlquery.Find(doc, "//tr[contains(@class,'bookalike') and contains(@class,'review')]")
	stubs := make([]WishlistStub, 0, len(rows))
	for _, row := range rows {
		titleTag := htmlquery.FindOne(row, ".//td[contains(@class,'title')]//div[@class='value']/a")
		if titleTag == nil {
			continue
		}
		title := strings.TrimSpace(htmlquery.InnerText(titleTag))
		href := htmlquery.SelectAttr(titleTag, "href")
		if title == "" || href == "" {
			continue
		}

		stub := WishlistStub{
			Title:  title,
			Author: "Unknown",
			URL:    g.absoluteURL(href),
		}

		if authorTag := htmlquery.FindOne(row, ".//td[contains(@class,'author')]//div[@class='value']/a"); authorTag != nil {
			if author := strings.TrimSpace(htmlquery.InnerText(authorTag)); author != "" {
				stub.Author = author
			}
		}

		if ratingTag := htmlquery.FindOne(row, ".//td[contains(@class,'avg_rating')]//div[@class='value']"); ratingTag != nil {
			if rating, err := strconv.ParseFloat(strings.TrimSpace(htmlquery.InnerText(ratingTag)), 64); err == nil {
				stub.Rating = rating
			}
		}

		stubs = append(stubs, stub)
	}

	hasNext := htmlquery.FindOne(doc, "//a[@rel='next']") != nil
	return stubs, hasNext, nil
}

// GetBookDetail fetches a book's detail page and extracts its page count.
// A page without the expected markup yields a nil count, not an error.
func (g *GRSource) GetBookDetail(ctx context.Context, url string) (*int, error) {
	body, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing detail page: %w", err)
	}

	tag := htmlquery.FindOne(doc, "//p[@data-testid='pagesFormat']")
	if tag == nil {
		return nil, nil
	}
	return parsePageCount(htmlquery.InnerText(tag)), nil
}

func (g *GRSource) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return g.baseURL + href
}

var _digits = regexp.MustCompile(`\d+`)

// parsePageCount handles "320 pages", "1 Page", and similar variants,
// falling back to the first run of digits.
func parsePageCount(text string) *int {
	text = strings.TrimSpace(text)
	for _, word := range []string{"pages", "page", "Pages", "Page"} {
		before, _, ok := strings.Cut(text, word)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(before)); err == nil {
			return &n
		}
	}
	if m := _digits.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return &n
		}
	}
	return nil
}

// collectWishlist walks every page of a user's shelf. An error on the
// first page fails the whole listing; later pages that fail are logged
// and skipped so earlier pages still count.
func collectWishlist(ctx context.Context, src source, userID string) ([]WishlistStub, error) {
	var all []WishlistStub
	for page := 1; ; page++ {
		stubs, hasNext, err := src.ListWishlistPage(ctx, userID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			Log(ctx).Warn("problem fetching shelf page", "userID", userID, "page", page, "err", err)
			break
		}
		all = append(all, stubs...)
		if !hasNext {
			break
		}
	}
	return all, nil
}
