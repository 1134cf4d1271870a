package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nao1215/onioncrawl/internal/config"
	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/storage"
)

func TestParseKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []string
		want    int
		wantErr bool
	}{
		{name: "all kinds", input: []string{"fetch", "enrich", "detect", "index"}, want: 4},
		{name: "single kind", input: []string{"fetch"}, want: 1},
		{name: "duplicates collapse", input: []string{"fetch", "fetch"}, want: 1},
		{name: "unknown kind", input: []string{"transcode"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseKinds(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseKinds(%v) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseKinds(%v) error = %v", tt.input, err)
			}
			if len(got) != tt.want {
				t.Errorf("parseKinds(%v) = %v, want %d kinds", tt.input, got, tt.want)
			}
		})
	}
}

// An enrich-only process carries no proxy pool. The dispatcher it gets
// must settle the exif kind as failed instead of dereferencing a nil
// pool hidden behind the client-source interface.
func TestBuildDispatcherWithoutProxyPool(t *testing.T) {
	t.Parallel()

	pages, err := storage.Open(t.TempDir(), storage.DefaultOptions())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { pages.Close() })

	ctx := context.Background()
	page := &model.Page{
		ID:         "0db5bfb0-24bd-40b0-9b83-11a9c112a4cf",
		Target:     "http://p53lf57qovyuvwsc6xnrppyply3vtqm7l6pcobkmyqsiofyeznfu5uqd.onion/",
		StatusCode: 200,
		Outcome:    model.FetchSuccess,
		Artifacts: model.Artifacts{
			Images: []string{"http://p53lf57qovyuvwsc6xnrppyply3vtqm7l6pcobkmyqsiofyeznfu5uqd.onion/photo.jpg"},
		},
		Enrichment: model.NewEnrichment(),
		FetchedAt:  time.Now().UTC(),
	}
	if err := pages.Create(ctx, page); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cfg := config.New()
	cfg.EnrichRetryBudget = 0
	cfg.EnrichBackoff = config.Duration(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatcher := buildDispatcher(cfg, pages, nil, logger)
	if _, err := dispatcher.HandleDetect(ctx, page.ID); err != nil {
		t.Fatalf("HandleDetect() error = %v", err)
	}

	got, err := pages.Get(ctx, page.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if status := got.Enrichment.Status[model.EnrichExif]; status != model.EnrichmentFailed {
		t.Errorf("exif status = %s, want %s", status, model.EnrichmentFailed)
	}
}
