package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/cache"
	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids a page
var ErrDisallowed = errors.New("disallowed by robots.txt")

// FetchConfig controls page fetching
type FetchConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBytes     int64
	MaxRedirects int
	CacheTTL     time.Duration
}

// DefaultFetchConfig returns conservative fetch limits
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		UserAgent:    "casefile/1.0 (+https://github.com/ppiankov/casefile)",
		Timeout:      30 * time.Second,
		MaxBytes:     5 << 20,
		MaxRedirects: 3,
		CacheTTL:     24 * time.Hour,
	}
}

// Page is a fetched web page reduced to visible text
type Page struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

// Name is the document name for the page: the de-slugged last path
// segment with a .txt extension
func (p Page) Name() string {
	return subject(p.FinalURL) + ".txt"
}

// Fetcher downloads pages for ingestion. It honors robots.txt and
// crawl delays and keeps fetched pages in a cache.
type Fetcher struct {
	httpClient *http.Client
	robots     *robotsChecker
	limiter    *worker.Limiter
	cache      cache.Cache
	config     FetchConfig
	logger     *zap.Logger
}

// NewFetcher creates a fetcher. limiter and c may be nil.
func NewFetcher(config FetchConfig, limiter *worker.Limiter, c cache.Cache, logger *zap.Logger) *Fetcher {
	def := DefaultFetchConfig()
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = def.MaxBytes
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = def.MaxRedirects
	}
	if limiter == nil {
		limiter = worker.NewLimiter(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		httpClient: client,
		robots:     newRobotsChecker(client, config.UserAgent),
		limiter:    limiter,
		cache:      c,
		config:     config,
		logger:     logger.Named("fetch"),
	}
}

// Fetch downloads rawURL and returns its title and visible text
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	key := cache.Key("page", rawURL)
	if f.cache != nil {
		if page, ok := cache.GetJSON[Page](f.cache, key); ok {
			f.logger.Debug("page cache hit", zap.String("url", rawURL))
			return page, nil
		}
	}

	allowed, delay, err := f.robots.canFetch(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}
	if !allowed {
		return Page{}, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}

	host, err := hostOf(rawURL)
	if err != nil {
		return Page{}, err
	}
	if err := f.limiter.WaitWithDelay(ctx, host, delay); err != nil {
		return Page{}, err
	}

	page, err := f.get(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}

	if f.cache != nil {
		if err := cache.SetJSON(f.cache, key, page, f.config.CacheTTL); err != nil {
			f.logger.Warn("page cache write failed", zap.Error(err))
		}
	}
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body := io.LimitReader(resp.Body, f.config.MaxBytes)
	finalURL := resp.Request.URL.String()

	page := Page{URL: rawURL, FinalURL: finalURL}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return Page{}, fmt.Errorf("read body: %w", err)
		}
		page.Text = strings.TrimSpace(string(data))
		return page, nil
	}

	page.Title, page.Text, err = extract.TextFromHTML(body)
	if err != nil {
		return Page{}, fmt.Errorf("parse page: %w", err)
	}
	return page, nil
}

// subject turns the last URL path segment into a readable name
func subject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	last = strings.NewReplacer("_", " ", "-", " ").Replace(last)
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	return last
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return parsed.Host, nil
}
