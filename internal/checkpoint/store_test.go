package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haseab/retrace-sub007/internal/models"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	state := models.NewImportState("rewind")
	state.ProgressState = models.StatePaused
	state.MarkProcessed("/videos/b.mp4")
	state.MarkProcessed("/videos/a.mp4")
	state.LastVideoPath = "/videos/c.mp4"
	state.LastFrameIndex = 42
	state.TotalFramesImported = 120
	state.TotalFramesDeduplicated = 30

	if err := store.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load("rewind")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected state, got nil")
	}

	if loaded.ProgressState != models.StatePaused {
		t.Errorf("expected paused, got %s", loaded.ProgressState)
	}
	if !loaded.IsProcessed("/videos/a.mp4") || !loaded.IsProcessed("/videos/b.mp4") {
		t.Error("processed set did not survive the round trip")
	}
	if loaded.IsProcessed("/videos/c.mp4") {
		t.Error("in-flight video must not be in the processed set")
	}
	if loaded.LastVideoPath != "/videos/c.mp4" || loaded.LastFrameIndex != 42 {
		t.Errorf("intra-video marker lost: %s @ %d", loaded.LastVideoPath, loaded.LastFrameIndex)
	}
	if loaded.TotalFramesImported != 120 || loaded.TotalFramesDeduplicated != 30 {
		t.Error("counters did not survive the round trip")
	}
}

func TestStoreLoadMissingSource(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	state, err := store.Load("never-imported")
	if err != nil {
		t.Fatalf("missing checkpoint must not be an error: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for unknown source, got %+v", state)
	}
}

func TestStoreFileShape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	state := models.NewImportState("rewind")
	state.StartedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	state.MarkProcessed("/videos/z.mp4")
	state.MarkProcessed("/videos/a.mp4")
	if err := store.Save(state); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "rewind.json"))
	if err != nil {
		t.Fatalf("read checkpoint file: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("checkpoint is not valid JSON: %v", err)
	}
	for _, field := range []string{"source", "processedVideoPaths", "progressState", "startedAt", "lastUpdatedAt"} {
		if _, ok := doc[field]; !ok {
			t.Errorf("checkpoint document missing %q", field)
		}
	}

	// Sorted array keeps the file diffable between writes.
	text := string(raw)
	if strings.Index(text, "/videos/a.mp4") > strings.Index(text, "/videos/z.mp4") {
		t.Error("processed paths should be persisted sorted")
	}
	if !strings.Contains(text, "2024-03-01T12:00:00Z") {
		t.Error("timestamps should be RFC3339")
	}
}

func TestStoreOverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	state := models.NewImportState("rewind")
	for i := 0; i < 5; i++ {
		state.TotalFramesImported = int64(i)
		if err := store.Save(state); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one checkpoint file, found %d entries", len(entries))
	}

	loaded, err := store.Load("rewind")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TotalFramesImported != 4 {
		t.Errorf("expected last write to win, got %d", loaded.TotalFramesImported)
	}
}
