package enrich

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type stubClientSource struct {
	client *http.Client
	err    error
}

func (s *stubClientSource) Client() (*http.Client, error) {
	return s.client, s.err
}

func TestSameOnionHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		imageURL string
		pageHost string
		want     bool
	}{
		{
			name:     "same onion host",
			imageURL: "http://example.onion/img/a.jpg",
			pageHost: "example.onion",
			want:     true,
		},
		{
			name:     "different onion host",
			imageURL: "http://other.onion/img/a.jpg",
			pageHost: "example.onion",
			want:     false,
		},
		{
			name:     "clearnet never fetched",
			imageURL: "https://example.com/a.jpg",
			pageHost: "example.com",
			want:     false,
		},
		{
			name:     "unparsable URL",
			imageURL: "http://%zz/a.jpg",
			pageHost: "example.onion",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sameOnionHost(tt.imageURL, tt.pageHost); got != tt.want {
				t.Errorf("sameOnionHost(%q, %q) = %v, want %v", tt.imageURL, tt.pageHost, got, tt.want)
			}
		})
	}
}

func TestDetectRequiresClientSource(t *testing.T) {
	t.Parallel()

	d := NewExifDetector(nil, 0)
	if _, err := d.Detect(context.Background(), "example.onion", []string{"http://example.onion/a.jpg"}); !errors.Is(err, ErrNoHTTPClient) {
		t.Errorf("Detect() error = %v, want ErrNoHTTPClient", err)
	}
}

func TestDetectSkipsOutOfScopeImages(t *testing.T) {
	t.Parallel()

	// The stub client would fail any real request, so an empty result
	// proves nothing was fetched.
	d := NewExifDetector(&stubClientSource{client: &http.Client{}}, 0)
	tags, err := d.Detect(context.Background(), "example.onion", []string{
		"https://example.com/photo.jpg",
		"http://other.onion/photo.jpg",
		"http://example.onion/page.html",
	})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("Detect() fetched out-of-scope images: %v", tags)
	}
}
