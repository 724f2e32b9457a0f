package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"
)

// Remote classifies images by posting them to a model server.
//
// The server receives the raw image bytes and answers with
// {"probabilities": [...]} aligned with the label file.
type Remote struct {
	url    string
	labels []string
	client *http.Client
}

// NewRemote creates a Remote classifier. timeout bounds each request.
func NewRemote(url string, labels []string, timeout time.Duration) *Remote {
	return &Remote{
		url:    url,
		labels: labels,
		client: &http.Client{Timeout: timeout},
	}
}

// Labels returns the label set the classifier ranks over.
func (c *Remote) Labels() []string {
	return c.labels
}

type remoteResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// Classify implements Classifier.
//
// Images that do not decode as JPEG or PNG fail with ErrMalformedImage
// before any request is made.
func (c *Remote) Classify(ctx context.Context, img []byte) (Result, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(img)); err != nil {
		return Unknown(), fmt.Errorf("%w: %v", ErrMalformedImage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(img))
	if err != nil {
		return Result{}, fmt.Errorf("classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return Unknown(), fmt.Errorf("%w: model server rejected image", ErrMalformedImage)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classify: model server status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("classify: decode response: %w", err)
	}
	return FromProbabilities(c.labels, out.Probabilities)
}
