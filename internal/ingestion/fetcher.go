package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
)

// Fetcher pulls raw sighting records from one upstream source.
type Fetcher interface {
	Source() models.Source
	Fetch(ctx context.Context) ([]normalize.RawRecord, error)
}

// NewFetchers returns a fetcher for every enabled source.
func NewFetchers(cfg config.SourcesConfig) []Fetcher {
	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	var fetchers []Fetcher
	if cfg.EDDMapSEnabled {
		fetchers = append(fetchers, NewEDDMapSFetcher(client, cfg.EDDMapSURL))
	}
	if cfg.NASEnabled {
		fetchers = append(fetchers, NewNASFetcher(client, cfg.NASURL))
	}
	if cfg.INaturalistEnabled {
		fetchers = append(fetchers, NewINaturalistFetcher(client, cfg.INaturalistURL, cfg.INaturalistPageSize, cfg.INaturalistMaxPages))
	}
	return fetchers
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// get issues a GET and returns the response if the status is 200. The caller
// closes the body.
func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "hotspot-patrol/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	return resp, nil
}

// flexString decodes a JSON string, number or null into its text form.
// Sources are inconsistent about quoting coordinates.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}
