package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// HTTPClientSource provides HTTP clients routed through the proxy pool.
// The detector never fetches with an unproxied client.
type HTTPClientSource interface {
	Client() (*http.Client, error)
}

// ExifDetector downloads a page's images and records the EXIF tag names
// embedded in them. The tag names alone flag correlation risk without
// storing location or serial values.
type ExifDetector struct {
	clients HTTPClientSource

	// maxImageSize bounds the downloaded bytes per image.
	maxImageSize int64

	// imagePattern selects the formats that can carry EXIF.
	imagePattern *regexp.Regexp
}

// NewExifDetector creates a detector fetching through the given client
// source.
func NewExifDetector(clients HTTPClientSource, maxImageSize int64) *ExifDetector {
	if maxImageSize <= 0 {
		maxImageSize = 5 * 1024 * 1024
	}
	return &ExifDetector{
		clients:      clients,
		maxImageSize: maxImageSize,
		imagePattern: regexp.MustCompile(`(?i)\.(jpe?g|tiff?|heic)(?:\?[^"'\s]*)?$`),
	}
}

// Detect fetches the EXIF-capable images among imageURLs and returns the
// tag names per image URL. Only images on pageHost are fetched; anything
// else would route discovery traffic to hosts the operator never seeded.
// Per-image failures are skipped, so a missing or broken image never
// fails the kind.
func (d *ExifDetector) Detect(ctx context.Context, pageHost string, imageURLs []string) (map[string][]string, error) {
	if d.clients == nil {
		return nil, ErrNoHTTPClient
	}

	client, err := d.clients.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire proxied client: %w", err)
	}

	tags := make(map[string][]string)
	for _, imageURL := range imageURLs {
		select {
		case <-ctx.Done():
			return tags, ctx.Err()
		default:
		}

		if !d.imagePattern.MatchString(imageURL) {
			continue
		}
		if !sameOnionHost(imageURL, pageHost) {
			continue
		}

		names, err := d.detectOne(ctx, client, imageURL)
		if err != nil || len(names) == 0 {
			continue
		}
		tags[imageURL] = names
	}
	return tags, nil
}

// sameOnionHost reports whether imageURL lives on the given .onion host.
// Clearnet images are never fetched regardless of host match.
func sameOnionHost(imageURL, pageHost string) bool {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if !strings.HasSuffix(host, ".onion") {
		return false
	}
	return strings.EqualFold(host, pageHost)
}

// detectOne downloads one image and returns its EXIF tag names.
func (d *ExifDetector) detectOne(ctx context.Context, client *http.Client, imageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", d.maxImageSize)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxImageSize))
	if err != nil {
		return nil, err
	}

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		// Most images simply carry no EXIF segment.
		return nil, nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.TagName == "" || seen[entry.TagName] {
			continue
		}
		seen[entry.TagName] = true
		names = append(names, entry.TagName)
	}
	return names, nil
}
