package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
)

type inatResponse struct {
	TotalResults int          `json:"total_results"`
	Results      []inatRecord `json:"results"`
}

type inatRecord struct {
	ObservedOn  flexString   `json:"observed_on"`
	GeoJSON     *inatGeoJSON `json:"geojson"`
	PlaceGuess  flexString   `json:"place_guess"`
	Description flexString   `json:"description"`
}

type inatGeoJSON struct {
	Coordinates []float64 `json:"coordinates"` // [lng, lat]
}

// INaturalistFetcher pages through the iNaturalist observations API.
type INaturalistFetcher struct {
	client   *http.Client
	url      string
	perPage  int
	maxPages int
}

func NewINaturalistFetcher(client *http.Client, url string, perPage, maxPages int) *INaturalistFetcher {
	if client == nil {
		client = defaultClient()
	}
	if perPage < 1 {
		perPage = 100
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &INaturalistFetcher{client: client, url: url, perPage: perPage, maxPages: maxPages}
}

func (f *INaturalistFetcher) Source() models.Source { return models.SourceINaturalist }

// Fetch requests pages until the reported total is covered or maxPages is
// reached. A failing page ends pagination; records from earlier pages are
// still returned, with the error only if nothing was fetched.
func (f *INaturalistFetcher) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	var records []normalize.RawRecord

	for page := 1; page <= f.maxPages; page++ {
		data, err := f.fetchPage(ctx, page)
		if err != nil {
			if len(records) == 0 {
				return nil, err
			}
			slog.Warn("iNaturalist pagination stopped early", "page", page, "error", err)
			break
		}

		for _, obs := range data.Results {
			records = append(records, obs.rawRecord())
		}

		if data.TotalResults <= page*f.perPage || len(data.Results) == 0 {
			break
		}
	}

	return records, nil
}

func (f *INaturalistFetcher) fetchPage(ctx context.Context, page int) (*inatResponse, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("error parsing iNaturalist url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(f.perPage))
	u.RawQuery = q.Encode()

	resp, err := get(ctx, f.client, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var data inatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding page %d: %w", page, err)
	}
	return &data, nil
}

func (o inatRecord) rawRecord() normalize.RawRecord {
	raw := normalize.RawRecord{
		Date:   string(o.ObservedOn),
		Region: string(o.PlaceGuess),
		Note:   string(o.Description),
	}
	if o.GeoJSON != nil && len(o.GeoJSON.Coordinates) >= 2 {
		raw.Longitude = normalize.FormatFloat(o.GeoJSON.Coordinates[0])
		raw.Latitude = normalize.FormatFloat(o.GeoJSON.Coordinates[1])
	}
	return raw
}
