package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatewatch-data/gatewatch/internal/httputil"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

// DefaultInferTimeout bounds a single inference round trip.
const DefaultInferTimeout = 5 * time.Second

// HTTPDetector talks to an external inference server. The server exposes one
// endpoint per model variant: POST {base}/v1/infer/{variant} with the raw
// encoded frame as the body.
type HTTPDetector struct {
	baseURL string
	variant Variant
	client  httputil.HTTPClient
}

// NewHTTPDetector creates a detector client for one model variant. A nil
// client falls back to a standard client with the default timeout.
func NewHTTPDetector(baseURL string, v Variant, client httputil.HTTPClient) *HTTPDetector {
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{Timeout: DefaultInferTimeout})
	}
	return &HTTPDetector{baseURL: baseURL, variant: v, client: client}
}

// wireDetection is the inference server's JSON shape for one detection.
type wireDetection struct {
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Mask       *wireMask  `json:"mask,omitempty"`
}

type wireMask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bits   string `json:"bits"` // base64, row-major bitmap
}

type inferResponse struct {
	Detections []wireDetection `json:"detections"`
}

// Infer implements Detector.
func (d *HTTPDetector) Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error) {
	url := fmt.Sprintf("%s/v1/infer/%s", d.baseURL, d.variant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Camera-ID", frame.CameraID)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode, body)
	}

	var wire inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return decodeDetections(wire.Detections)
}

func decodeDetections(wire []wireDetection) ([]vision.Detection, error) {
	out := make([]vision.Detection, 0, len(wire))
	for _, w := range wire {
		cls, err := vision.ParseClass(w.Class)
		if err != nil {
			// Classes outside the tracked set (bicycles, animals) are
			// dropped rather than failing the frame.
			continue
		}
		det := vision.Detection{
			Box:        vision.Box{X1: w.Box[0], Y1: w.Box[1], X2: w.Box[2], Y2: w.Box[3]},
			Class:      cls,
			Confidence: w.Confidence,
		}
		if w.Mask != nil {
			raw, err := base64.StdEncoding.DecodeString(w.Mask.Bits)
			if err != nil {
				return nil, fmt.Errorf("decode mask bits: %w", err)
			}
			det.Mask = vision.MaskFromBytes(w.Mask.Width, w.Mask.Height, raw)
		}
		out = append(out, det)
	}
	return out, nil
}

// Variant implements Detector.
func (d *HTTPDetector) Variant() Variant { return d.variant }

// Close implements Detector. The HTTP client holds no per-model state.
func (d *HTTPDetector) Close() error { return nil }
