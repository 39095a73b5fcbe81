// Package reports extracts free-text sighting reports from news articles.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
)

const reportSource = "News"

var noise = regexp.MustCompile(`http\S+|@\S+|#`)

// CleanText strips links, @handles and '#' characters, then trims and
// lowercases what is left.
func CleanText(s string) string {
	s = noise.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type Collector struct {
	client  *http.Client
	urls    []string
	repo    repository.ReportRepository
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func NewCollector(client *http.Client, urls []string, repo repository.ReportRepository, metrics *observability.Metrics) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Collector{
		client:  client,
		urls:    urls,
		repo:    repo,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock replaces the clock used to date reports.
func (c *Collector) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// Collect fetches every configured article and stores it as a report. It
// returns how many were stored and the joined errors of those that were not.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	var (
		stored int
		errs   []error
	)
	for _, u := range c.urls {
		report, err := c.fetch(ctx, u)
		if err != nil {
			slog.Error("report fetch failed", "url", u, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := c.repo.AddReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("storing report %s: %w", u, err))
			continue
		}
		stored++
		c.metrics.ReportsStored.Inc()
	}

	if stored > 0 {
		slog.Info("reports collected", "count", stored)
	}
	return stored, errors.Join(errs...)
}

func (c *Collector) fetch(ctx context.Context, rawURL string) (*models.Report, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing report url %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating report request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hotspot-patrol/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s returned status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return nil, fmt.Errorf("extracting content from %s: %w", rawURL, err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = pageURL.Host
	}

	return &models.Report{
		Source: reportSource,
		Date:   c.clock.Now().UTC(),
		URL:    rawURL,
		Title:  title,
		Text:   CleanText(article.TextContent),
	}, nil
}
