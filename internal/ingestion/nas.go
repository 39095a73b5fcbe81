package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
)

type nasResponse struct {
	Results []nasRecord `json:"results"`
}

type nasRecord struct {
	ObsDate     flexString `json:"obsdate"`
	Latitude    flexString `json:"latitude"`
	Longitude   flexString `json:"longitude"`
	County      flexString `json:"county"`
	Description flexString `json:"description"`
}

// NASFetcher queries the USGS Nonindigenous Aquatic Species occurrence API.
type NASFetcher struct {
	client *http.Client
	url    string
}

func NewNASFetcher(client *http.Client, url string) *NASFetcher {
	if client == nil {
		client = defaultClient()
	}
	return &NASFetcher{client: client, url: url}
}

func (f *NASFetcher) Source() models.Source { return models.SourceNAS }

func (f *NASFetcher) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	resp, err := get(ctx, f.client, f.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data nasResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	records := make([]normalize.RawRecord, 0, len(data.Results))
	for _, r := range data.Results {
		records = append(records, normalize.RawRecord{
			Date:      string(r.ObsDate),
			Latitude:  string(r.Latitude),
			Longitude: string(r.Longitude),
			Region:    string(r.County),
			Note:      string(r.Description),
		})
	}

	return records, nil
}
