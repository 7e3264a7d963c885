// Package importer contains the import pipeline core: discovery and scan
// statistics, frame extraction with timestamp reconstruction, consecutive
// frame deduplication, and crash-safe resumable checkpointing.
package importer

import (
	"context"
	"time"

	"github.com/haseab/retrace-sub007/internal/database"
	"github.com/haseab/retrace-sub007/internal/models"
)

// Importer is one third-party source's import pipeline. Implementations must
// allow at most one in-flight import at a time; a second StartImport while one
// is running is a warned no-op.
type Importer interface {
	Source() string
	IsDataAvailable() bool
	Scan(ctx context.Context) (*models.ScanResult, error)
	StartImport(ctx context.Context, sink EventSink) error
	PauseImport()
	CancelImport()
	GetState() *models.ImportState
	Importing() bool
}

// FrameStore is the destination store the pipeline inserts into. It assigns
// its own identifiers; the pipeline never inspects its schema.
// database.FrameRepo implements it.
type FrameStore interface {
	EnsureSegment(ctx context.Context, segmentID, source, videoPath string, createdAt time.Time) (string, error)
	InsertFrame(ctx context.Context, rec *models.FrameRecord) (string, error)
	InsertTextRegion(ctx context.Context, frameID string, region models.TextRegion) error
	InsertDocument(ctx context.Context, doc database.SearchDocument) (string, error)
}

// Config carries the per-source tunables. Zero values fall back to defaults.
type Config struct {
	// Root is the source archive's root directory.
	Root string

	// CaptureIntervalSeconds is the real-world seconds each decoded frame
	// represents. Screen recorders capture far slower than they encode, so
	// this drives timestamp reconstruction instead of the file's frame rate.
	CaptureIntervalSeconds float64

	// BatchSize is the number of imported frames between intra-video
	// checkpoints.
	BatchSize int

	// VideoDelay is the fixed sleep between videos, bounding CPU usage.
	VideoDelay time.Duration

	// BatchDelay is the sleep after each intra-video checkpoint.
	BatchDelay time.Duration
}

const (
	defaultCaptureInterval = 2.0
	defaultBatchSize       = 50
	defaultVideoDelay      = 200 * time.Millisecond
	defaultBatchDelay      = 25 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.CaptureIntervalSeconds <= 0 {
		c.CaptureIntervalSeconds = defaultCaptureInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.VideoDelay <= 0 {
		c.VideoDelay = defaultVideoDelay
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = defaultBatchDelay
	}
	return c
}
