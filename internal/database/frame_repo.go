package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haseab/retrace-sub007/internal/models"
)

// FrameRepo is the destination store for imported frames. It assigns its own
// identifiers; callers never see the schema.
type FrameRepo struct {
	db *DB
}

func NewFrameRepo(db *DB) *FrameRepo {
	return &FrameRepo{db: db}
}

// EnsureSegment records the mapping from one source video to one segment and
// returns the segment's canonical id. The insert is idempotent on the video
// path: a video seen before keeps its original segment id, so frames replayed
// for that video collide on (segment_id, frame_index) instead of duplicating.
func (r *FrameRepo) EnsureSegment(ctx context.Context, segmentID, source, videoPath string, createdAt time.Time) (string, error) {
	var insert, lookup string
	if r.db.dbType == "postgres" {
		insert = `
			INSERT INTO segments (id, source, video_path, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (video_path) DO NOTHING`
		lookup = `SELECT id FROM segments WHERE video_path = $1`
	} else {
		insert = `
			INSERT OR IGNORE INTO segments (id, source, video_path, created_at)
			VALUES (?, ?, ?, ?)`
		lookup = `SELECT id FROM segments WHERE video_path = ?`
	}

	if _, err := r.db.conn.ExecContext(ctx, insert, segmentID, source, videoPath, createdAt); err != nil {
		return "", fmt.Errorf("failed to insert segment: %w", err)
	}

	var id string
	if err := r.db.conn.QueryRowContext(ctx, lookup, videoPath).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to look up segment id: %w", err)
	}
	return id, nil
}

// InsertFrame stores one surviving frame and returns the assigned frame id.
func (r *FrameRepo) InsertFrame(ctx context.Context, rec *models.FrameRecord) (string, error) {
	id := uuid.New().String()

	var query string
	if r.db.dbType == "postgres" {
		query = `
			INSERT INTO frames (id, segment_id, frame_index, captured_at, width, height, image, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (segment_id, frame_index) DO UPDATE SET
				captured_at = EXCLUDED.captured_at,
				width = EXCLUDED.width,
				height = EXCLUDED.height,
				image = EXCLUDED.image`
	} else {
		query = `
			INSERT OR REPLACE INTO frames (id, segment_id, frame_index, captured_at, width, height, image, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := r.db.conn.ExecContext(ctx, query,
		id,
		rec.SegmentID,
		rec.FrameIndex,
		rec.Timestamp,
		rec.Width,
		rec.Height,
		rec.Image,
		rec.Source,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert frame: %w", err)
	}
	return id, nil
}

// InsertTextRegion stores one recognized text block for a frame.
func (r *FrameRepo) InsertTextRegion(ctx context.Context, frameID string, region models.TextRegion) error {
	var query string
	if r.db.dbType == "postgres" {
		query = `
			INSERT INTO text_regions (id, frame_id, text, x, y, width, height, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	} else {
		query = `
			INSERT INTO text_regions (id, frame_id, text, x, y, width, height, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := r.db.conn.ExecContext(ctx, query,
		uuid.New().String(),
		frameID,
		region.Text,
		region.X,
		region.Y,
		region.Width,
		region.Height,
		region.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to insert text region: %w", err)
	}
	return nil
}

// SearchDocument is the search-index row derived from one frame.
type SearchDocument struct {
	FrameID     string
	CapturedAt  time.Time
	Content     string
	AppName     string
	WindowTitle string
	URL         string
}

// InsertDocument stores a search-index document and returns the assigned id.
func (r *FrameRepo) InsertDocument(ctx context.Context, doc SearchDocument) (string, error) {
	id := uuid.New().String()

	var query string
	if r.db.dbType == "postgres" {
		query = `
			INSERT INTO documents (id, frame_id, captured_at, content, app_name, window_title, url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
	} else {
		query = `
			INSERT INTO documents (id, frame_id, captured_at, content, app_name, window_title, url)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := r.db.conn.ExecContext(ctx, query,
		id,
		doc.FrameID,
		doc.CapturedAt,
		doc.Content,
		doc.AppName,
		doc.WindowTitle,
		doc.URL,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// CountFramesBySegment reports how many frames a segment holds. Used by tests
// and the status surface, not by the import loop.
func (r *FrameRepo) CountFramesBySegment(ctx context.Context, segmentID string) (int, error) {
	query := `SELECT COUNT(*) FROM frames WHERE segment_id = ?`
	if r.db.dbType == "postgres" {
		query = `SELECT COUNT(*) FROM frames WHERE segment_id = $1`
	}

	var n int
	err := r.db.conn.QueryRowContext(ctx, query, segmentID).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}
