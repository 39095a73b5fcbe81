package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-hotspot-patrol/internal/broadcast"
	"github.com/mr1hm/go-hotspot-patrol/internal/cluster"
	"github.com/mr1hm/go-hotspot-patrol/internal/detect"
	"github.com/mr1hm/go-hotspot-patrol/internal/hotspot"
	"github.com/mr1hm/go-hotspot-patrol/internal/ingestion"
	"github.com/mr1hm/go-hotspot-patrol/internal/models"
	"github.com/mr1hm/go-hotspot-patrol/internal/normalize"
	"github.com/mr1hm/go-hotspot-patrol/internal/observability"
	"github.com/mr1hm/go-hotspot-patrol/internal/reports"
	"github.com/mr1hm/go-hotspot-patrol/internal/repository"
)

const (
	reportLimit       = 100
	reportTextPreview = 100
	maxImageBytes     = 10 << 20
)

type Dependencies struct {
	Store       repository.Store
	Hotspots    *hotspot.Service
	Ingestion   *ingestion.Manager
	Detector    detect.Detector
	Broadcaster *broadcast.Broadcaster
	Metrics     *observability.Metrics
}

type Handler struct {
	store       repository.Store
	hotspots    *hotspot.Service
	ingestion   *ingestion.Manager
	detector    detect.Detector
	broadcaster *broadcast.Broadcaster
	metrics     *observability.Metrics
}

func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		store:       deps.Store,
		hotspots:    deps.Hotspots,
		ingestion:   deps.Ingestion,
		detector:    deps.Detector,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/mapdata", h.getMapData)
	api.GET("/hotspots", h.getHotspots)
	api.GET("/hotspots/stream", h.streamHotspots)
	api.GET("/sightings.geojson", h.getSightingsGeoJSON)
	api.POST("/sightings", h.createSighting)
	api.POST("/scrape_update", h.scrapeUpdate)
	api.POST("/clusters/recompute", h.recompute)
	api.GET("/clusters/latest", h.latestRun)
	api.GET("/reports", h.getReports)
	api.POST("/detect", h.detect)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getMapData(c *gin.Context) {
	ctx := c.Request.Context()

	sightings, err := h.store.ReadAll(ctx)
	if err != nil {
		slog.Error("error reading sightings", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch sightings"})
		return
	}
	clusters, err := h.store.ListClusters(ctx)
	if err != nil {
		slog.Error("error reading clusters", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch clusters"})
		return
	}

	c.JSON(http.StatusOK, mapDataResponse{
		Sightings: toSightingResponses(sightings),
		Clusters:  toClusterResponses(clusters),
	})
}

func (h *Handler) getHotspots(c *gin.Context) {
	clusters, err := h.store.ListClusters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch clusters"})
		return
	}

	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusOK, hotspotsToGeoJSON(clusters))
}

func (h *Handler) getSightingsGeoJSON(c *gin.Context) {
	filter := repository.Filter{
		Limit:          1000,
		GeolocatedOnly: true,
	}

	if s := c.Query("source"); s != "" {
		src, err := models.ParseSource(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Source = &src
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 10000 {
			filter.Limit = lim
		}
	}

	sightings, err := h.store.ListSightings(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch sightings"})
		return
	}

	c.Header("Content-Type", geoJSONContentType)
	c.JSON(http.StatusOK, sightingsToGeoJSON(sightings))
}

func (h *Handler) createSighting(c *gin.Context) {
	var raw normalize.RawRecord
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sighting body"})
		return
	}

	s, err := h.ingestion.AddManual(c.Request.Context(), raw)
	if err != nil {
		slog.Error("error adding manual sighting", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to store sighting"})
		return
	}

	c.JSON(http.StatusCreated, toSightingResponse(s))
}

func (h *Handler) scrapeUpdate(c *gin.Context) {
	res, err := h.hotspots.UpdateAll(c.Request.Context())
	if err != nil {
		h.runError(c, err)
		return
	}

	sources := make([]sourceResponse, 0, len(res.Sources))
	for _, s := range res.Sources {
		sr := sourceResponse{Source: string(s.Source), Fetched: s.Fetched, Stored: s.Stored}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		sources = append(sources, sr)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "Data updated and clusters computed.",
		"sources":  sources,
		"reports":  res.Reports,
		"run_id":   res.Run.ID,
		"clusters": len(res.Run.Clusters),
	})
}

func (h *Handler) recompute(c *gin.Context) {
	params := h.hotspots.Params()

	if v := c.Query("epsilon_meters"); v != "" {
		eps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "epsilon_meters must be a number"})
			return
		}
		params.EpsilonMeters = eps
	}
	if v := c.Query("min_samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_samples must be an integer"})
			return
		}
		params.MinSamples = n
	}

	run, err := h.hotspots.RecomputeWith(c.Request.Context(), params)
	if err != nil {
		h.runError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *Handler) latestRun(c *gin.Context) {
	run, err := h.store.LatestRun(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch latest run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no clustering run yet"})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *Handler) runError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cluster.ErrInvalidParameters):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, hotspot.ErrStoreUnavailable):
		slog.Error("hotspot run failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sighting store unavailable"})
	default:
		slog.Error("hotspot run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
	}
}

func (h *Handler) getReports(c *gin.Context) {
	list, err := h.store.ListReports(c.Request.Context(), reportLimit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch reports"})
		return
	}

	out := make([]reportResponse, 0, len(list))
	for _, r := range list {
		out = append(out, reportResponse{
			Source: r.Source,
			Title:  r.Title,
			URL:    r.URL,
			Text:   reports.Truncate(r.Text, reportTextPreview),
			Date:   r.Date.Format("2006-01-02"),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) detect(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided."})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	defer f.Close()

	image, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read image"})
		return
	}
	if len(image) > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	result, err := h.detector.Detect(c.Request.Context(), image)
	if errors.Is(err, detect.ErrEmptyImage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided."})
		return
	}
	if err != nil {
		slog.Error("detection failed", "detector", h.detector.Name(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "detection failed"})
		return
	}

	h.metrics.Detections.WithLabelValues(h.detector.Name()).Inc()
	c.JSON(http.StatusOK, result)
}
