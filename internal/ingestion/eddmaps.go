package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
)

// EDDMapSFetcher downloads the EDDMapS records export as CSV.
type EDDMapSFetcher struct {
	client *http.Client
	url    string
}

func NewEDDMapSFetcher(client *http.Client, url string) *EDDMapSFetcher {
	if client == nil {
		client = defaultClient()
	}
	return &EDDMapSFetcher{client: client, url: url}
}

func (f *EDDMapSFetcher) Source() models.Source { return models.SourceEDDMapS }

func (f *EDDMapSFetcher) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	resp, err := get(ctx, f.client, f.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseEDDMapSCSV(resp.Body)
}

func parseEDDMapSCSV(r io.Reader) ([]normalize.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []normalize.RawRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("error reading csv row %d: %w", len(records)+2, err)
		}

		records = append(records, normalize.RawRecord{
			Date:      field(row, "date"),
			Latitude:  field(row, "latitude"),
			Longitude: field(row, "longitude"),
			Region:    field(row, "county"),
			Note:      field(row, "description"),
		})
	}

	return records, nil
}
