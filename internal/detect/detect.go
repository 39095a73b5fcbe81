// Package detect runs object detection on uploaded sighting photos.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mr1hm/go-hotspot-patrol/internal/config"
)

var ErrEmptyImage = errors.New("image is empty")

type Detection struct {
	Class      int     `json:"class"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"` // x1, y1, x2, y2 in pixels
}

type Result struct {
	RequestID  string      `json:"request_id"`
	Detections []Detection `json:"detections"`
}

type Detector interface {
	Name() string
	Detect(ctx context.Context, image []byte) (*Result, error)
}

// New builds the detector selected by cfg.Kind.
func New(cfg config.DetectorConfig) (Detector, error) {
	switch cfg.Kind {
	case "", "stub":
		return NewStubDetector(rand.Uint64()), nil
	case "remote":
		return NewRemoteDetector(&http.Client{Timeout: cfg.Timeout}, cfg.URL), nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", cfg.Kind)
	}
}

// StubDetector reports a single python with a random confidence in
// [0.5, 1.0] and a random box. It stands in until a model is deployed.
type StubDetector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewStubDetector(seed uint64) *StubDetector {
	return &StubDetector{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *StubDetector) Name() string { return "stub" }

func (d *StubDetector) Detect(ctx context.Context, image []byte) (*Result, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	between := func(lo, hi int) int { return lo + d.rng.IntN(hi-lo+1) }

	return &Result{
		RequestID: uuid.NewString(),
		Detections: []Detection{{
			Class:      0,
			Name:       "python",
			Confidence: math.Round((0.5+d.rng.Float64()*0.5)*100) / 100,
			BBox:       [4]int{between(50, 150), between(50, 150), between(200, 300), between(200, 300)},
		}},
	}, nil
}

// RemoteDetector posts the image to an inference service that answers with
// {"detections": [...]}.
type RemoteDetector struct {
	client *http.Client
	url    string
}

func NewRemoteDetector(client *http.Client, url string) *RemoteDetector {
	return &RemoteDetector{client: client, url: url}
}

func (d *RemoteDetector) Name() string { return "remote" }

func (d *RemoteDetector) Detect(ctx context.Context, image []byte) (*Result, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding detector response: %w", err)
	}
	if result.RequestID == "" {
		result.RequestID = uuid.NewString()
	}
	if result.Detections == nil {
		result.Detections = []Detection{}
	}
	return &result, nil
}
