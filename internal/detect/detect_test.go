package detect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-hotspot-patrol/internal/config"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestStubDetector_Ranges(t *testing.T) {
	d := NewStubDetector(42)

	for i := 0; i < 200; i++ {
		res, err := d.Detect(context.Background(), pngHeader)
		require.NoError(t, err)
		require.Len(t, res.Detections, 1)
		assert.NotEmpty(t, res.RequestID)

		det := res.Detections[0]
		assert.Equal(t, "python", det.Name)
		assert.Equal(t, 0, det.Class)
		assert.GreaterOrEqual(t, det.Confidence, 0.5)
		assert.LessOrEqual(t, det.Confidence, 1.0)
		assert.GreaterOrEqual(t, det.BBox[0], 50)
		assert.LessOrEqual(t, det.BBox[1], 150)
		assert.GreaterOrEqual(t, det.BBox[2], 200)
		assert.LessOrEqual(t, det.BBox[3], 300)
	}
}

func TestStubDetector_SameSeedSameBoxes(t *testing.T) {
	a, err := NewStubDetector(7).Detect(context.Background(), pngHeader)
	require.NoError(t, err)
	b, err := NewStubDetector(7).Detect(context.Background(), pngHeader)
	require.NoError(t, err)
	assert.Equal(t, a.Detections, b.Detections)
}

func TestStubDetector_EmptyImage(t *testing.T) {
	_, err := NewStubDetector(1).Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestRemoteDetector_Detect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, pngHeader, body)

		fmt.Fprint(w, `{"detections":[{"class":0,"name":"python","confidence":0.91,"bbox":[10,20,110,220]}]}`)
	}))
	defer srv.Close()

	res, err := NewRemoteDetector(srv.Client(), srv.URL).Detect(context.Background(), pngHeader)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, 0.91, res.Detections[0].Confidence)
	assert.Equal(t, [4]int{10, 20, 110, 220}, res.Detections[0].BBox)
	assert.NotEmpty(t, res.RequestID)
}

func TestRemoteDetector_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteDetector(srv.Client(), srv.URL).Detect(context.Background(), pngHeader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRemoteDetector_NoDetections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	res, err := NewRemoteDetector(srv.Client(), srv.URL).Detect(context.Background(), pngHeader)
	require.NoError(t, err)
	assert.NotNil(t, res.Detections)
	assert.Empty(t, res.Detections)
}

func TestNew(t *testing.T) {
	d, err := New(config.DetectorConfig{Kind: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub", d.Name())

	d, err = New(config.DetectorConfig{Kind: "remote", URL: "http://localhost:9000/detect", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "remote", d.Name())

	_, err = New(config.DetectorConfig{Kind: "onnx"})
	assert.Error(t, err)
}
