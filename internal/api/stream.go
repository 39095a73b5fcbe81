package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamKeepAlive = 15 * time.Second

// streamHotspots pushes the full cluster set as server-sent events: once on
// connect, then after every clustering run. Every "hotspots" event carries
// the same cluster array shape.
func (h *Handler) streamHotspots(c *gin.Context) {
	ctx := c.Request.Context()

	id, updates := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	current, err := h.store.ListClusters(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to fetch clusters"})
		return
	}

	slog.Info("hotspot stream opened", "subscriber", id, "subscribers", h.broadcaster.SubscriberCount())
	defer slog.Info("hotspot stream closed", "subscriber", id)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("hotspots", toClusterResponses(current))
	c.Writer.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case run, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("hotspots", toClusterResponses(run.Clusters))
			return true
		case <-ticker.C:
			c.SSEvent("keepalive", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
