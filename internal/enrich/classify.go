package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Classification is the classification service's verdict for a text blob.
type Classification struct {
	// Subject is the detected subject label.
	Subject string

	// Confidence is the classifier's confidence for Subject, in [0, 1].
	Confidence float64

	// Language is the detected language as a BCP 47 tag. Empty when the
	// service's tag does not parse.
	Language string
}

// ClassifyClient calls the subject/language classification collaborator.
type ClassifyClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClassifyClient creates a client for the classification service at
// baseURL.
func NewClassifyClient(baseURL string, timeout time.Duration) *ClassifyClient {
	return &ClassifyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Classify sends the text blob and returns the service's verdict.
func (c *ClassifyClient) Classify(ctx context.Context, text string) (*Classification, error) {
	reqBody, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: classify service status %d", ErrServiceError, resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode classify response: %w", err)
	}

	return &Classification{
		Subject:    result.Label,
		Confidence: result.Confidence,
		Language:   canonicalLanguage(result.Language),
	}, nil
}

// canonicalLanguage normalizes the service's language tag to canonical
// BCP 47 form. Unparsable tags are dropped rather than stored raw.
func canonicalLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	return parsed.String()
}
