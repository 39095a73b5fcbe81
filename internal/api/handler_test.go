package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mr1hm/go-hotspot-patrol/internal/broadcast"
	"github.com/mr1hm/go-hotspot-patrol/internal/cluster"
	"github.com/mr1hm/go-hotspot-patrol/internal/config"
	"github.com/mr1hm/go-hotspot-patrol/internal/detect"
	"github.com/mr1hm/go-hotspot-patrol/internal/hotspot"
	"github.com/mr1hm/go-hotspot-patrol/internal/ingestion"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
)

type staticFetcher struct {
	source  models.Source
	records []normalize.RawRecord
}

func (f *staticFetcher) Source() models.Source { return f.source }

func (f *staticFetcher) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	return f.records, nil
}

// brokenStore fails every sighting read.
type brokenStore struct {
	*repository.MemoryStore
}

func (b *brokenStore) ReadAll(ctx context.Context) ([]models.Sighting, error) {
	return nil, errors.New("database is locked")
}

// evergladesRecords returns n records a few meters apart.
func evergladesRecords(n int) []normalize.RawRecord {
	out := make([]normalize.RawRecord, n)
	for i := range out {
		out[i] = normalize.RawRecord{
			Date:      "03/15/2023",
			Latitude:  normalize.FormatFloat(25.7617 + float64(i)*0.0001),
			Longitude: "-80.1918",
			Region:    "Miami-Dade",
		}
	}
	return out
}

type testEnv struct {
	router      *gin.Engine
	store       repository.Store
	broadcaster *broadcast.Broadcaster
	metrics     *observability.Metrics
}

func setupTestRouter(store repository.Store, fetchers ...ingestion.Fetcher) *testEnv {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Worker: config.WorkerConfig{Count: 2, BufferSize: 8}}
	metrics := observability.NewMetricsForTesting()
	b := broadcast.NewBroadcaster()
	mgr := ingestion.NewManager(cfg, store, metrics, fetchers...)
	svc := hotspot.NewService(store, hotspot.Options{
		Params:      cluster.DefaultParams(),
		Metrics:     metrics,
		Broadcaster: b,
		Refresher:   mgr,
	})

	router := gin.New()
	handler := NewHandler(Dependencies{
		Store:       store,
		Hotspots:    svc,
		Ingestion:   mgr,
		Detector:    detect.NewStubDetector(1),
		Broadcaster: b,
		Metrics:     metrics,
	})
	handler.RegisterRoutes(router)

	return &testEnv{router: router, store: store, broadcaster: b, metrics: metrics}
}

func (e *testEnv) do(method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())

	w := env.do(http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decode[map[string]string](t, w)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestMapData_Empty(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())

	w := env.do(http.MethodGet, "/api/mapdata", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"sightings":[],"clusters":[]}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestScrapeUpdate_ComputesHotspots(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore(),
		&staticFetcher{source: models.SourceNAS, records: evergladesRecords(5)},
		&staticFetcher{source: models.SourceEDDMapS, records: []normalize.RawRecord{
			{Date: "2023-01-02", Latitude: "26.5", Longitude: "-81.9"},
			{Date: "2023-01-02", Latitude: "north", Longitude: "-81.9"},
		}},
	)

	w := env.do(http.MethodPost, "/api/scrape_update", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[struct {
		Status   string           `json:"status"`
		Sources  []sourceResponse `json:"sources"`
		RunID    string           `json:"run_id"`
		Clusters int              `json:"clusters"`
	}](t, w)

	if resp.Status != "Data updated and clusters computed." {
		t.Errorf("unexpected status %q", resp.Status)
	}
	if resp.Clusters != 1 {
		t.Errorf("expected 1 cluster, got %d", resp.Clusters)
	}
	if resp.RunID == "" {
		t.Error("expected a run id")
	}
	if len(resp.Sources) != 2 || resp.Sources[0].Stored != 5 || resp.Sources[1].Stored != 2 {
		t.Errorf("unexpected source results %+v", resp.Sources)
	}

	w = env.do(http.MethodGet, "/api/mapdata", nil, "")
	md := decode[mapDataResponse](t, w)
	if len(md.Sightings) != 7 {
		t.Errorf("expected 7 sightings, got %d", len(md.Sightings))
	}
	if len(md.Clusters) != 1 || md.Clusters[0].Count != 5 || md.Clusters[0].ClusterID != 0 {
		t.Errorf("unexpected clusters %+v", md.Clusters)
	}

	w = env.do(http.MethodGet, "/api/hotspots", nil, "")
	if ct := w.Header().Get("Content-Type"); ct != geoJSONContentType {
		t.Errorf("expected content-type %s, got %s", geoJSONContentType, ct)
	}
	fc := decode[struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}](t, w)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("unexpected collection %+v", fc)
	}
	if lng := fc.Features[0].Geometry.Coordinates[0]; math.Abs(lng+80.1918) > 1e-9 {
		t.Errorf("expected longitude first, got %v", fc.Features[0].Geometry.Coordinates)
	}
	if count := fc.Features[0].Properties["count"]; count != float64(5) {
		t.Errorf("expected count 5, got %v", count)
	}
}

func TestScrapeUpdate_StoreUnavailable(t *testing.T) {
	env := setupTestRouter(&brokenStore{MemoryStore: repository.NewMemoryStore()})

	w := env.do(http.MethodPost, "/api/scrape_update", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestRecompute_Parameters(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore(),
		&staticFetcher{source: models.SourceNAS, records: evergladesRecords(3)},
	)
	env.do(http.MethodPost, "/api/scrape_update", nil, "")

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"defaults leave three points as noise", "", http.StatusOK, 0},
		{"lower min_samples", "?min_samples=3", http.StatusOK, 1},
		{"zero min_samples", "?min_samples=0", http.StatusBadRequest, 0},
		{"negative epsilon", "?epsilon_meters=-5", http.StatusBadRequest, 0},
		{"non-numeric epsilon", "?epsilon_meters=far", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/clusters/recompute"+tt.query, nil, "")
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			run := decode[runResponse](t, w)
			if len(run.Clusters) != tt.count {
				t.Errorf("expected %d clusters, got %d", tt.count, len(run.Clusters))
			}
			if run.Eligible != 3 {
				t.Errorf("expected 3 eligible sightings, got %d", run.Eligible)
			}
		})
	}
}

func TestLatestRun(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())

	w := env.do(http.MethodGet, "/api/clusters/latest", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before any run, got %d", w.Code)
	}

	env.do(http.MethodPost, "/api/clusters/recompute", nil, "")

	w = env.do(http.MethodGet, "/api/clusters/latest", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	run := decode[runResponse](t, w)
	if run.MinSamples != 4 || run.EpsilonMeters != 10000 {
		t.Errorf("unexpected parameters %+v", run)
	}
	if run.Clusters == nil {
		t.Error("expected an empty cluster list, not null")
	}
}

func TestCreateSighting(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())

	body := bytes.NewBufferString(`{"date":"2024-02-29","latitude":"25.3","longitude":"200","region":"Monroe"}`)
	w := env.do(http.MethodPost, "/api/sightings", body, "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	s := decode[sightingResponse](t, w)
	if s.Source != string(models.SourceManual) {
		t.Errorf("expected Manual source, got %s", s.Source)
	}
	if s.Lat == nil || *s.Lat != 25.3 {
		t.Errorf("expected latitude 25.3, got %v", s.Lat)
	}
	if s.Lng != nil {
		t.Errorf("expected out-of-range longitude to be dropped, got %v", *s.Lng)
	}
	if s.Date != "2024-02-29" {
		t.Errorf("expected date 2024-02-29, got %v", s.Date)
	}

	w = env.do(http.MethodPost, "/api/sightings", bytes.NewBufferString(`{"latitude":`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for a broken body, got %d", w.Code)
	}
}

func TestSightingsGeoJSON_Filters(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	lat, lng := 25.0, -80.0
	for _, src := range []models.Source{models.SourceNAS, models.SourceNAS, models.SourceEDDMapS} {
		if err := store.AddSighting(ctx, &models.Sighting{Source: src, Latitude: &lat, Longitude: &lng}); err != nil {
			t.Fatalf("AddSighting failed: %v", err)
		}
	}
	if err := store.AddSighting(ctx, &models.Sighting{Source: models.SourceNAS}); err != nil {
		t.Fatalf("AddSighting failed: %v", err)
	}
	env := setupTestRouter(store)

	type collection struct {
		Features []json.RawMessage `json:"features"`
	}

	w := env.do(http.MethodGet, "/api/sightings.geojson", nil, "")
	if n := len(decode[collection](t, w).Features); n != 3 {
		t.Errorf("expected 3 geolocated sightings, got %d", n)
	}

	w = env.do(http.MethodGet, "/api/sightings.geojson?source=usgs_nas", nil, "")
	if n := len(decode[collection](t, w).Features); n != 2 {
		t.Errorf("expected 2 NAS sightings, got %d", n)
	}

	w = env.do(http.MethodGet, "/api/sightings.geojson?limit=1", nil, "")
	if n := len(decode[collection](t, w).Features); n != 1 {
		t.Errorf("expected 1 sighting, got %d", n)
	}

	w = env.do(http.MethodGet, "/api/sightings.geojson?source=gbif", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown source, got %d", w.Code)
	}
}

func TestGetReports_TruncatesText(t *testing.T) {
	store := repository.NewMemoryStore()
	err := store.AddReport(context.Background(), &models.Report{
		Source: "News",
		Date:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		URL:    "https://example.com/pythons",
		Title:  "Python hunters",
		Text:   strings.Repeat("é", 150),
	})
	if err != nil {
		t.Fatalf("AddReport failed: %v", err)
	}
	env := setupTestRouter(store)

	w := env.do(http.MethodGet, "/api/reports", nil, "")
	list := decode[[]reportResponse](t, w)
	if len(list) != 1 {
		t.Fatalf("expected 1 report, got %d", len(list))
	}
	if n := len([]rune(list[0].Text)); n != 100 {
		t.Errorf("expected 100 characters, got %d", n)
	}
	if list[0].Date != "2024-05-01" {
		t.Errorf("expected date 2024-05-01, got %s", list[0].Date)
	}
}

func TestDetect(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())

	w := env.do(http.MethodPost, "/api/detect", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if resp := decode[map[string]string](t, w); resp["error"] != "No image provided." {
		t.Errorf("unexpected error %q", resp["error"])
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "python.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte("\x89PNG\r\n\x1a\n"))
	mw.Close()

	w = env.do(http.MethodPost, "/api/detect", &body, mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[detect.Result](t, w)
	if len(res.Detections) != 1 || res.Detections[0].Name != "python" {
		t.Errorf("unexpected detections %+v", res.Detections)
	}
	if got := testutil.ToFloat64(env.metrics.Detections.WithLabelValues("stub")); got != 1 {
		t.Errorf("expected 1 detection counted, got %v", got)
	}
}

func TestStreamHotspots(t *testing.T) {
	env := setupTestRouter(repository.NewMemoryStore())
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/hotspots/stream")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event stream, got %s", ct)
	}

	type event struct {
		name string
		data string
	}
	events := make(chan event, 4)
	go func() {
		defer close(events)
		var e event
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if name, ok := strings.CutPrefix(line, "event:"); ok {
				e.name = strings.TrimSpace(name)
			} else if data, ok := strings.CutPrefix(line, "data:"); ok {
				e.data = strings.TrimSpace(data)
			} else if line == "" && e.name != "" {
				events <- e
				e = event{}
			}
		}
	}()

	next := func() event {
		t.Helper()
		select {
		case e := <-events:
			return e
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return event{}
		}
	}

	clustersOf := func(e event) []clusterResponse {
		t.Helper()
		if e.name != "hotspots" {
			t.Fatalf("expected hotspots event, got %q", e.name)
		}
		var clusters []clusterResponse
		if err := json.Unmarshal([]byte(e.data), &clusters); err != nil {
			t.Fatalf("hotspots payload %q is not a cluster array: %v", e.data, err)
		}
		return clusters
	}

	if initial := clustersOf(next()); len(initial) != 0 {
		t.Errorf("expected no clusters on connect, got %+v", initial)
	}

	env.broadcaster.Broadcast(&models.ClusterRun{ID: "run-1", Clusters: []models.ClusterSummary{
		{ClusterID: 0, MemberCount: 4, CenterLatitude: 25.5, CenterLongitude: -80.5, RadiusMeters: 30},
	}})
	update := clustersOf(next())
	if len(update) != 1 || update[0].Count != 4 || update[0].CenterLng != -80.5 || update[0].RadiusM != 30 {
		t.Errorf("unexpected update payload %+v", update)
	}

	env.broadcaster.Close()
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:5000"); code != http.StatusOK {
		t.Errorf("expected first request to pass, got %d", code)
	}
	if code := send("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected second request to be limited, got %d", code)
	}
	if code := send("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("expected another client to pass, got %d", code)
	}
}
