// Package news reads crypto headlines from RSS and Atom feeds.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptodash/internal/market"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FeedURL is one configured news feed.
type FeedURL struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// DefaultFeeds are used when no feeds are configured.
var DefaultFeeds = []FeedURL{
	{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
	{Name: "Cointelegraph", URL: "https://cointelegraph.com/rss"},
	{Name: "Decrypt", URL: "https://decrypt.co/feed"},
}

const maxParallel = 4

type Source struct {
	feeds      []FeedURL
	limit      int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSource returns a Source that merges feeds and keeps the newest limit items.
func NewSource(feeds []FeedURL, limit int, timeout time.Duration, logger *zap.Logger) (*Source, error) {
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	for i, f := range feeds {
		if strings.TrimSpace(f.URL) == "" {
			return nil, market.NewConfigError(fmt.Sprintf("news.sources[%d].url", i), "must not be empty")
		}
	}
	if limit <= 0 {
		return nil, market.NewConfigError("news.limit", "must be positive, got %d", limit)
	}
	if timeout <= 0 {
		return nil, market.NewConfigError("news.timeout", "must be positive, got %s", timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		feeds:      append([]FeedURL(nil), feeds...),
		limit:      limit,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Fetch reads every feed concurrently. Feeds that fail are skipped; if all of
// them fail the result is nil and a *market.FetchError.
func (s *Source) Fetch(ctx context.Context) ([]market.NewsItem, error) {
	var (
		mu    sync.Mutex
		items []market.NewsItem
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, f := range s.feeds {
		g.Go(func() error {
			got, err := s.fetchFeed(gctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Non-critical: skip failed sources.
				s.logger.Warn("news feed failed", zap.String("source", f.Name), zap.Error(err))
				errs = append(errs, err)
				return nil
			}
			items = append(items, got...)
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(s.feeds) {
		return nil, &market.FetchError{Op: "fetch news", Err: errors.Join(errs...)}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	if len(items) > s.limit {
		items = items[:s.limit]
	}
	return items, nil
}

func (s *Source) fetchFeed(ctx context.Context, src FeedURL) ([]market.NewsItem, error) {
	parser := gofeed.NewParser()
	parser.Client = s.httpClient

	feed, err := parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Name, err)
	}

	name := src.Name
	if name == "" {
		name = feed.Title
	}

	items := make([]market.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		n := market.NewsItem{
			Title:       strings.TrimSpace(it.Title),
			Link:        it.Link,
			Description: cleanHTML(it.Description),
			Source:      name,
		}
		switch {
		case it.PublishedParsed != nil:
			n.PublishedAt = it.PublishedParsed.UTC()
		case it.UpdatedParsed != nil:
			n.PublishedAt = it.UpdatedParsed.UTC()
		}
		items = append(items, n)
	}
	return items, nil
}

// cleanHTML strips tags from a feed description.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
