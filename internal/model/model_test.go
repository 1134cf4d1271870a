package model

import "testing"

// TestTargetStateString tests the stable names of target states.
func TestTargetStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state TargetState
		want  string
	}{
		{TargetDiscovered, "discovered"},
		{TargetQueued, "queued"},
		{TargetFetching, "fetching"},
		{TargetFetched, "fetched"},
		{TargetFailed, "failed"},
		{TargetDead, "dead"},
		{TargetState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("TargetState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// TestParseTargetState tests round-tripping state names.
func TestParseTargetState(t *testing.T) {
	t.Parallel()

	for _, state := range []TargetState{
		TargetDiscovered, TargetQueued, TargetFetching,
		TargetFetched, TargetFailed, TargetDead,
	} {
		if got := ParseTargetState(state.String()); got != state {
			t.Errorf("ParseTargetState(%q) = %v, want %v", state.String(), got, state)
		}
	}

	if got := ParseTargetState("bogus"); got != TargetDiscovered {
		t.Errorf("ParseTargetState(bogus) = %v, want TargetDiscovered", got)
	}
}

// TestJobKindValid tests job kind validation.
func TestJobKindValid(t *testing.T) {
	t.Parallel()

	for _, kind := range []JobKind{JobFetch, JobDetect, JobEnrich, JobIndex} {
		if !kind.Valid() {
			t.Errorf("expected %q to be valid", kind)
		}
	}
	if JobKind("compress").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}

// TestJobIdempotencyKey tests that the key combines kind and payload.
func TestJobIdempotencyKey(t *testing.T) {
	t.Parallel()

	j := &Job{Kind: JobFetch, Payload: "http://example.onion/"}
	if got, want := j.IdempotencyKey(), "fetch:http://example.onion/"; got != want {
		t.Errorf("IdempotencyKey() = %q, want %q", got, want)
	}

	// Same payload under a different kind must not collide.
	j2 := &Job{Kind: JobEnrich, Payload: "http://example.onion/"}
	if j.IdempotencyKey() == j2.IdempotencyKey() {
		t.Error("keys for different kinds must differ")
	}
}

// TestEnrichmentTerminal tests terminal-state tracking across kinds.
func TestEnrichmentTerminal(t *testing.T) {
	t.Parallel()

	e := NewEnrichment()
	if e.Terminal() {
		t.Fatal("fresh enrichment must not be terminal")
	}

	e.Status[EnrichCapture] = EnrichmentDone
	e.Status[EnrichClassify] = EnrichmentFailed
	if e.Terminal() {
		t.Fatal("enrichment with a pending kind must not be terminal")
	}

	// Partial failure still counts as terminal once every kind settles.
	e.Status[EnrichExif] = EnrichmentDone
	if !e.Terminal() {
		t.Fatal("enrichment with all kinds settled must be terminal")
	}
}

// TestProjectionOf tests the index projection of a page.
func TestProjectionOf(t *testing.T) {
	t.Parallel()

	page := &Page{
		ID:     "abc",
		Target: "http://example.onion/",
		Title:  "Example",
		Body:   "hello",
		Artifacts: Artifacts{
			Emails: []string{"admin@example.onion"},
			CryptoAddresses: []CryptoAddress{
				{Currency: "bitcoin", Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			},
		},
		Enrichment: Enrichment{
			Subject:       "marketplace",
			Language:      "en",
			ScreenshotRef: "captures/abc.png",
		},
	}

	proj := ProjectionOf(page)
	if proj.Identifier != page.Target {
		t.Errorf("Identifier = %q, want %q", proj.Identifier, page.Target)
	}
	if proj.Subject != "marketplace" || proj.Language != "en" {
		t.Errorf("unexpected enrichment fields: %+v", proj)
	}
	if len(proj.Emails) != 1 || len(proj.CryptoAddresses) != 1 {
		t.Errorf("unexpected artifact fields: %+v", proj)
	}
}
