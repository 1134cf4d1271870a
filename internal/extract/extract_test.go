package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nao1215/onioncrawl/internal/model"
)

const testBase = "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/"

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Test Page</title></head><body>
		<a href="/about">About</a>
		<a href="http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/contact">Contact</a>
		<a href="http://aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion/">Other service</a>
		<a href="https://example.com/page">Clearnet</a>
		<a href="/about">Duplicate</a>
		<a href="mailto:admin@example.com">Mail</a>
	</body></html>`

	result, err := NewEngine().Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Title != "Test Page" {
		t.Errorf("Title = %q, want %q", result.Title, "Test Page")
	}
	if len(result.Artifacts.Links) != 4 {
		t.Fatalf("got %d links, want 4: %+v", len(result.Artifacts.Links), result.Artifacts.Links)
	}

	wantLinks := []model.Link{
		{URL: "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/about", Onion: true, InScope: true},
		{URL: "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/contact", Onion: true, InScope: true},
		{URL: "http://aaaqeayeaudaocajbifqydiob4ibceqtcqkrmfyydenbwha5dyp3kead.onion/", Onion: true, InScope: false},
		{URL: "https://example.com/page", Onion: false, InScope: false},
	}
	for i, want := range wantLinks {
		if result.Artifacts.Links[i] != want {
			t.Errorf("link[%d] = %+v, want %+v", i, result.Artifacts.Links[i], want)
		}
	}

	// The mailto link is skipped, not a malformed candidate.
	if result.Artifacts.Rejected != 0 {
		t.Errorf("Rejected = %d, want 0", result.Artifacts.Rejected)
	}
}

func TestExtractImagesAndMetadata(t *testing.T) {
	t.Parallel()

	page := `<html><head>
		<meta name="description" content="A hidden service">
		<meta property="og:title" content="Test">
		<meta name="empty" content="">
	</head><body>
		<img src="/images/photo.jpg">
		<img src="/images/photo.jpg">
	</body></html>`

	result, err := NewEngine().Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(result.Artifacts.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(result.Artifacts.Images))
	}
	want := "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion/images/photo.jpg"
	if result.Artifacts.Images[0] != want {
		t.Errorf("image = %q, want %q", result.Artifacts.Images[0], want)
	}

	if got := result.Artifacts.Metadata["description"]; got != "A hidden service" {
		t.Errorf("metadata[description] = %q", got)
	}
	if got := result.Artifacts.Metadata["og:title"]; got != "Test" {
		t.Errorf("metadata[og:title] = %q", got)
	}
	if _, ok := result.Artifacts.Metadata["empty"]; ok {
		t.Error("empty meta content was recorded")
	}
}

func TestExtractEmails(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		Contact Admin@Example.com or support@example.org.
		<!-- hidden: admin@example.com -->
	</body></html>`

	result, err := NewEngine().Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{"admin@example.com", "support@example.org"}
	if len(result.Artifacts.Emails) != len(want) {
		t.Fatalf("got %d emails, want %d: %v", len(result.Artifacts.Emails), len(want), result.Artifacts.Emails)
	}
	for i, w := range want {
		if result.Artifacts.Emails[i] != w {
			t.Errorf("email[%d] = %q, want %q", i, result.Artifacts.Emails[i], w)
		}
	}
}

func TestExtractCryptoAddresses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		currency string
		address  string
	}{
		{
			name:     "bitcoin legacy keeps case",
			text:     "send to 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa now",
			currency: "bitcoin",
			address:  "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		},
		{
			name:     "ethereum lowercased",
			text:     "wallet 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B here",
			currency: "ethereum",
			address:  "0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := extractCryptoAddresses(tt.text)
			if len(got) != 1 {
				t.Fatalf("got %d addresses, want 1: %+v", len(got), got)
			}
			if got[0].Currency != tt.currency || got[0].Address != tt.address {
				t.Errorf("got %+v, want {%s %s}", got[0], tt.currency, tt.address)
			}
		})
	}
}

func TestExtractCryptoAddressesDeduplicates(t *testing.T) {
	t.Parallel()

	text := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa and again 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	if got := extractCryptoAddresses(text); len(got) != 1 {
		t.Errorf("got %d addresses, want 1", len(got))
	}
}

func TestMalformedCandidatesDoNotAbort(t *testing.T) {
	t.Parallel()

	// One artifact class failing must leave the others intact; the
	// failures surface only in the rejected count.
	page := `<html><body>
		<a href="http://%zz">broken</a>
		<a href="/ok">fine</a>
		contact admin@example.com
		-----BEGIN PGP PUBLIC KEY BLOCK-----
		this is not a valid key
		-----END PGP PUBLIC KEY BLOCK-----
	</body></html>`

	result, err := NewEngine().Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Artifacts.Rejected < 2 {
		t.Errorf("Rejected = %d, want at least 2", result.Artifacts.Rejected)
	}
	if len(result.Artifacts.Links) != 1 {
		t.Errorf("got %d links, want 1", len(result.Artifacts.Links))
	}
	if len(result.Artifacts.Emails) != 1 {
		t.Errorf("got %d emails, want 1", len(result.Artifacts.Emails))
	}
	if len(result.Artifacts.KeyFingerprints) != 0 {
		t.Errorf("got fingerprints from an invalid block: %v", result.Artifacts.KeyFingerprints)
	}
}

func TestBodyNormalization(t *testing.T) {
	t.Parallel()

	page := "<html><body><p>hello   world</p>\n<p>again</p><script>var x = 1;</script></body></html>"
	result, err := NewEngine().Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Body != "hello world again" {
		t.Errorf("Body = %q, want %q", result.Body, "hello world again")
	}
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	page := "<html><body>hello world foo bar</body></html>"
	result, err := NewEngine(WithBodyLimit(13)).Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Body != "hello world" {
		t.Errorf("Body = %q, want %q", result.Body, "hello world")
	}
}

func TestBodyLimitKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	// A spaceless body of two-byte runes forces the hard cut; the bound
	// must land between runes, not inside one.
	page := "<html><body>ααααα</body></html>"
	result, err := NewEngine(WithBodyLimit(5)).Extract(testBase, strings.NewReader(page))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Body != "αα" {
		t.Errorf("Body = %q, want %q", result.Body, "αα")
	}
	if !utf8.ValidString(result.Body) {
		t.Errorf("Body = %q is not valid UTF-8", result.Body)
	}
}

func TestExtractRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine().Extract("not-a-url", strings.NewReader("<html></html>")); err == nil {
		t.Error("Extract() accepted a relative base URL")
	}
}
