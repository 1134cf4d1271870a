package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CaptureClient calls the visual-capture collaborator. The service
// renders the target URL through its own Tor-routed browser and returns
// a reference to the stored image.
type CaptureClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCaptureClient creates a client for the render service at baseURL.
// The service is a local collaborator, so the client is not proxied.
func NewCaptureClient(baseURL string, timeout time.Duration) *CaptureClient {
	return &CaptureClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// captureRequest is the render service's request body.
type captureRequest struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// captureResponse is the render service's response body.
type captureResponse struct {
	ImageRef string `json:"image_ref"`
}

// Capture requests a snapshot of the target URL and returns the image
// reference.
func (c *CaptureClient) Capture(ctx context.Context, targetURL string) (string, error) {
	reqBody, err := json.Marshal(captureRequest{
		URL:            targetURL,
		TimeoutSeconds: int(c.httpClient.Timeout.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("capture request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: capture service status %d", ErrServiceError, resp.StatusCode)
	}

	var result captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode capture response: %w", err)
	}
	if result.ImageRef == "" {
		return "", fmt.Errorf("%w: capture service returned no image reference", ErrServiceError)
	}
	return result.ImageRef, nil
}
