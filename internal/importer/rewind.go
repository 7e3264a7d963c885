package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haseab/retrace-sub007/internal/checkpoint"
	"github.com/haseab/retrace-sub007/internal/database"
	"github.com/haseab/retrace-sub007/internal/fingerprint"
	"github.com/haseab/retrace-sub007/internal/models"
	"github.com/haseab/retrace-sub007/internal/textextract"
	"github.com/haseab/retrace-sub007/internal/timeline"
	"github.com/haseab/retrace-sub007/internal/video"
)

const SourceRewind = "rewind"

// RewindImporter imports a Rewind-style archive of chunked MP4 screen
// recordings. All state mutation for the source is serialized through this one
// instance; readers get clones.
//
// Resume semantics: only videos wholly present in the processed set are
// skipped on restart. The intra-video lastVideoPath/lastFrameIndex marker is
// persisted for observability, but a partially-completed video restarts from
// frame 0 on resume — duplicate inserts are absorbed by the store's replace
// semantics and by consecutive-frame dedup. Intentional: at-least-once within
// a video, exactly-once at video granularity.
type RewindImporter struct {
	cfg         Config
	frames      video.FrameSource
	store       FrameStore
	text        textextract.Extractor
	checkpoints *checkpoint.Store

	mu              sync.Mutex
	state           *models.ImportState
	importing       bool
	pauseRequested  bool
	cancelRequested bool
}

func NewRewindImporter(
	cfg Config,
	frames video.FrameSource,
	store FrameStore,
	text textextract.Extractor,
	checkpoints *checkpoint.Store,
) *RewindImporter {
	if text == nil {
		text = textextract.Noop{}
	}
	return &RewindImporter{
		cfg:         cfg.withDefaults(),
		frames:      frames,
		store:       store,
		text:        text,
		checkpoints: checkpoints,
	}
}

func (s *RewindImporter) Source() string {
	return SourceRewind
}

// IsDataAvailable checks whether the archive root exists. No side effects.
func (s *RewindImporter) IsDataAvailable() bool {
	info, err := os.Stat(s.cfg.Root)
	return err == nil && info.IsDir()
}

func (s *RewindImporter) Importing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.importing
}

// GetState returns a copy of the in-memory state, loading the persisted
// checkpoint on first access.
func (s *RewindImporter) GetState() *models.ImportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadStateLocked()
	return s.state.Clone()
}

// PauseImport requests a graceful stop at the next video boundary. The video
// currently being decoded always finishes first.
func (s *RewindImporter) PauseImport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.importing {
		log.Printf("[IMPORT] pause requested but no import is running")
		return
	}
	s.pauseRequested = true
	log.Printf("[IMPORT] pause requested; stopping at next video boundary")
}

// CancelImport requests cancellation at the next video boundary.
func (s *RewindImporter) CancelImport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.importing {
		log.Printf("[IMPORT] cancel requested but no import is running")
		return
	}
	s.cancelRequested = true
	log.Printf("[IMPORT] cancel requested; stopping at next video boundary")
}

func (s *RewindImporter) loadStateLocked() {
	if s.state != nil {
		return
	}
	persisted, err := s.checkpoints.Load(SourceRewind)
	if err != nil {
		log.Printf("[IMPORT] failed to load checkpoint, starting fresh: %v", err)
	}
	if persisted != nil {
		s.state = persisted
	} else {
		s.state = models.NewImportState(SourceRewind)
	}
}

type videoFile struct {
	path string
	size int64
}

// enumerateVideos walks the archive root for MP4 chunks, sorted by path so
// runs are deterministic and repeatable.
func (s *RewindImporter) enumerateVideos() ([]videoFile, error) {
	if !s.IsDataAvailable() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.cfg.Root)
	}

	var videos []videoFile
	err := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		videos = append(videos, videoFile{path: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate videos under %s: %w", s.cfg.Root, err)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].path < videos[j].path })
	return videos, nil
}

// Scan enumerates the archive and reports statistics without importing
// anything. The progress state is transiently "scanning" and restored after.
func (s *RewindImporter) Scan(ctx context.Context) (*models.ScanResult, error) {
	s.mu.Lock()
	s.loadStateLocked()
	prev := s.state.ProgressState
	if !s.importing {
		s.state.ProgressState = models.StateScanning
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if !s.importing {
			s.state.ProgressState = prev
		}
		s.mu.Unlock()
	}()

	videos, err := s.enumerateVideos()
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoVideosFound, s.cfg.Root)
	}

	result := &models.ScanResult{Source: SourceRewind, VideoCount: len(videos)}
	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.TotalBytes += v.size

		s.mu.Lock()
		if s.state.IsProcessed(v.path) {
			result.AlreadyProcessed++
		}
		s.mu.Unlock()

		desc, err := s.frames.Probe(ctx, v.path)
		if err != nil {
			log.Printf("[SCAN] could not probe %s: %v", v.path, err)
			continue
		}
		result.EstimatedFrames += desc.FrameCount
		if result.EarliestVideo.IsZero() || desc.CreatedAt.Before(result.EarliestVideo) {
			result.EarliestVideo = desc.CreatedAt
		}
		if desc.CreatedAt.After(result.LatestVideo) {
			result.LatestVideo = desc.CreatedAt
		}
	}

	log.Printf("[SCAN] %d videos, %d bytes, ~%d frames, %d already processed",
		result.VideoCount, result.TotalBytes, result.EstimatedFrames, result.AlreadyProcessed)
	return result, nil
}

// StartImport runs one import attempt to completion, pause, cancellation or
// failure. It is a warned no-op when an import is already in flight. Pausing
// returns nil; cancellation returns ErrImportCancelled; anything fatal is
// persisted as failed and returned.
func (s *RewindImporter) StartImport(ctx context.Context, sink EventSink) error {
	s.mu.Lock()
	if s.importing {
		s.mu.Unlock()
		log.Printf("[IMPORT] import already running for %s; ignoring start request", SourceRewind)
		return nil
	}
	s.importing = true
	s.pauseRequested = false
	s.cancelRequested = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.importing = false
		s.mu.Unlock()
	}()

	d := newEventDispatcher(sink)
	defer d.close()

	if err := s.prepareState(); err != nil {
		d.publish(func(es EventSink) { es.ImportFailed(err) })
		return err
	}

	err := s.runImport(ctx, d)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrImportCancelled) {
		// Cancelled state was persisted at the boundary; not a failure.
		return err
	}

	s.mu.Lock()
	s.state.ProgressState = models.StateFailed
	s.state.ErrorMessage = err.Error()
	s.state.LastUpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	if perr := s.persist(); perr != nil {
		log.Printf("[IMPORT] failed to persist failure state: %v", perr)
	}
	d.publish(func(es EventSink) { es.ImportFailed(err) })
	return err
}

// prepareState loads or initializes the run's ImportState. A run interrupted
// while paused or importing resumes with its counters; any other prior outcome
// begins a fresh attempt that still skips already-processed videos.
func (s *RewindImporter) prepareState() error {
	persisted, err := s.checkpoints.Load(SourceRewind)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	now := time.Now().UTC()
	state := models.NewImportState(SourceRewind)
	if persisted != nil {
		switch persisted.ProgressState {
		case models.StatePaused, models.StateImporting:
			state = persisted
			log.Printf("[IMPORT] resuming previous run: %d videos done, %d frames imported",
				len(state.ProcessedVideoPaths), state.TotalFramesImported)
		default:
			state.ProcessedVideoPaths = persisted.ProcessedVideoPaths
			if state.ProcessedVideoPaths == nil {
				state.ProcessedVideoPaths = make(map[string]bool)
			}
		}
	}
	state.ProgressState = models.StateImporting
	state.ErrorMessage = ""
	state.LastUpdatedAt = now

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return err
	}
	return nil
}

// runTotals tracks one attempt's progress denominators.
type runTotals struct {
	startedAt      time.Time
	videosTotal    int
	videosHandled  int
	videosFailed   int
	bytesTotal     int64
	bytesProcessed int64
	knownFrames    int
	currentVideo   string
}

func (s *RewindImporter) runImport(ctx context.Context, d *eventDispatcher) error {
	videos, err := s.enumerateVideos()
	if err != nil {
		return err
	}

	run := &runTotals{startedAt: time.Now(), videosTotal: len(videos)}
	for _, v := range videos {
		run.bytesTotal += v.size
	}
	tracker := newRateTracker(5)

	log.Printf("[IMPORT] starting run over %d videos (%d bytes)", run.videosTotal, run.bytesTotal)

	for i, v := range videos {
		i, v := i, v // keep per-iteration values for async event closures under Go <1.22 loop semantics
		stop, err := s.checkBoundary(ctx, d, run)
		if stop || err != nil {
			return err
		}

		s.mu.Lock()
		alreadyDone := s.state.IsProcessed(v.path)
		s.mu.Unlock()
		if alreadyDone {
			// Skips still count toward progress so resumed runs don't appear
			// to start over.
			run.videosHandled++
			run.bytesProcessed += v.size
			continue
		}

		run.currentVideo = v.path
		d.publish(func(es EventSink) { es.VideoStarted(v.path, i+1, run.videosTotal) })

		started := time.Now()
		imported, deduped, frameCount, verr := s.processVideo(ctx, v.path)
		if verr != nil {
			var fatal *fatalError
			if errors.As(verr, &fatal) {
				return fatal.err
			}
			// One bad video never aborts the import.
			log.Printf("[IMPORT] skipping video %s: %v", v.path, verr)
			videosProcessedTotal.WithLabelValues(SourceRewind, "error").Inc()
			run.videosHandled++
			run.videosFailed++
			run.bytesProcessed += v.size
			d.publish(func(es EventSink) { es.VideoFailed(v.path, verr) })
			continue
		}

		elapsed := time.Since(started)
		videosProcessedTotal.WithLabelValues(SourceRewind, "success").Inc()
		videoProcessingDuration.WithLabelValues(SourceRewind).Observe(elapsed.Seconds())

		s.mu.Lock()
		s.state.MarkProcessed(v.path)
		s.state.TotalFramesImported += imported
		s.state.TotalFramesDeduplicated += deduped
		s.state.LastVideoPath = ""
		s.state.LastFrameIndex = 0
		s.state.LastUpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		if err := s.persist(); err != nil {
			return err
		}

		run.videosHandled++
		run.bytesProcessed += v.size
		run.knownFrames += frameCount
		run.currentVideo = ""
		tracker.observe(v.size, elapsed.Seconds())

		d.publish(func(es EventSink) { es.VideoFinished(v.path, imported, deduped) })
		s.publishSnapshot(d, run, tracker, models.StateImporting)

		// Yield between videos to bound CPU usage.
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.VideoDelay):
		}
	}

	return s.finishRun(d, run)
}

// checkBoundary observes pause/cancel (and context cancellation) between
// videos. Returns stop=true for a graceful pause.
func (s *RewindImporter) checkBoundary(ctx context.Context, d *eventDispatcher, run *runTotals) (bool, error) {
	s.mu.Lock()
	cancelled := s.cancelRequested || ctx.Err() != nil
	paused := s.pauseRequested
	s.mu.Unlock()

	if cancelled {
		s.mu.Lock()
		s.state.ProgressState = models.StateCancelled
		s.state.LastUpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		if err := s.persist(); err != nil {
			return false, err
		}
		s.publishSnapshot(d, run, nil, models.StateCancelled)
		log.Printf("[IMPORT] run cancelled after %d/%d videos", run.videosHandled, run.videosTotal)
		return false, fmt.Errorf("%s: %w", SourceRewind, ErrImportCancelled)
	}

	if paused {
		s.mu.Lock()
		s.state.ProgressState = models.StatePaused
		s.state.LastUpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		if err := s.persist(); err != nil {
			return false, err
		}
		s.publishSnapshot(d, run, nil, models.StatePaused)
		log.Printf("[IMPORT] run paused after %d/%d videos", run.videosHandled, run.videosTotal)
		return true, nil
	}

	return false, nil
}

func (s *RewindImporter) finishRun(d *eventDispatcher, run *runTotals) error {
	s.mu.Lock()
	s.state.ProgressState = models.StateCompleted
	s.state.LastVideoPath = ""
	s.state.LastFrameIndex = 0
	s.state.LastUpdatedAt = time.Now().UTC()
	framesImported := s.state.TotalFramesImported
	framesDeduplicated := s.state.TotalFramesDeduplicated
	s.mu.Unlock()
	if err := s.persist(); err != nil {
		return err
	}

	summary := models.ImportSummary{
		Source:             SourceRewind,
		VideosProcessed:    run.videosHandled - run.videosFailed,
		VideosFailed:       run.videosFailed,
		FramesImported:     framesImported,
		FramesDeduplicated: framesDeduplicated,
		Duration:           time.Since(run.startedAt),
	}
	d.publish(func(es EventSink) { es.ImportCompleted(summary) })
	s.publishSnapshot(d, run, nil, models.StateCompleted)

	log.Printf("[IMPORT] run completed: %d videos (%d failed), %d frames imported, %d deduplicated in %s",
		run.videosHandled, run.videosFailed, framesImported, framesDeduplicated, summary.Duration.Round(time.Millisecond))
	return nil
}

// processVideo imports one video: probe, decode frames in index order,
// deduplicate against the previous surviving frame, reconstruct timestamps,
// extract text and insert. Per-frame failures are logged and skipped; only
// checkpoint I/O failures are fatal.
func (s *RewindImporter) processVideo(ctx context.Context, path string) (imported, deduped int64, frameCount int, err error) {
	desc, err := s.frames.Probe(ctx, path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("probe %s: %w", path, err)
	}

	// EnsureSegment returns the canonical id: a video seen in a previous
	// attempt keeps its original segment so replayed frames upsert in place.
	segmentID, err := s.store.EnsureSegment(ctx, uuid.New().String(), SourceRewind, path, desc.CreatedAt)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ensure segment for %s: %w", path, err)
	}

	prevFingerprint := ""
	sinceCheckpoint := 0

	for i := 0; i < desc.FrameCount; i++ {
		frame, err := s.frames.DecodeFrame(ctx, path, i)
		if err != nil {
			log.Printf("[IMPORT] skipping frame %d of %s: %v", i, path, err)
			continue
		}

		fp := fingerprint.HashBytes(frame.Data)
		if prevFingerprint != "" && fp == prevFingerprint {
			deduped++
			framesDeduplicatedTotal.WithLabelValues(SourceRewind).Inc()
			continue
		}

		rec := &models.FrameRecord{
			Source:     SourceRewind,
			SegmentID:  segmentID,
			FrameIndex: i,
			Timestamp:  timeline.FrameTimestamp(desc.CreatedAt, desc.FrameCount, i, s.cfg.CaptureIntervalSeconds),
			Image:      frame.Data,
			Width:      frame.Width,
			Height:     frame.Height,
		}

		extraction, err := s.text.ExtractText(ctx, frame.Data)
		if err != nil {
			log.Printf("[IMPORT] text extraction failed for frame %d of %s: %v", i, path, err)
			continue
		}
		rec.Extraction = *extraction

		frameID, err := s.store.InsertFrame(ctx, rec)
		if err != nil {
			log.Printf("[IMPORT] insert failed for frame %d of %s: %v", i, path, err)
			continue
		}
		for _, region := range extraction.Regions {
			if err := s.store.InsertTextRegion(ctx, frameID, region); err != nil {
				log.Printf("[IMPORT] insert text region failed for frame %d of %s: %v", i, path, err)
			}
		}
		if extraction.FullText != "" {
			_, err := s.store.InsertDocument(ctx, database.SearchDocument{
				FrameID:     frameID,
				CapturedAt:  rec.Timestamp,
				Content:     extraction.FullText,
				AppName:     extraction.AppName,
				WindowTitle: extraction.WindowTitle,
				URL:         extraction.BrowserURL,
			})
			if err != nil {
				log.Printf("[IMPORT] insert document failed for frame %d of %s: %v", i, path, err)
			}
		}

		prevFingerprint = fp
		imported++
		framesImportedTotal.WithLabelValues(SourceRewind).Inc()

		sinceCheckpoint++
		if sinceCheckpoint >= s.cfg.BatchSize {
			sinceCheckpoint = 0
			s.mu.Lock()
			s.state.LastVideoPath = path
			s.state.LastFrameIndex = i
			s.state.LastUpdatedAt = time.Now().UTC()
			s.mu.Unlock()
			if err := s.persist(); err != nil {
				return imported, deduped, desc.FrameCount, &fatalError{err: err}
			}
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.BatchDelay):
			}
		}
	}

	return imported, deduped, desc.FrameCount, nil
}

func (s *RewindImporter) publishSnapshot(d *eventDispatcher, run *runTotals, tracker *rateTracker, state models.ProgressState) {
	s.mu.Lock()
	framesImported := s.state.TotalFramesImported
	framesDeduplicated := s.state.TotalFramesDeduplicated
	s.mu.Unlock()

	snapshot := models.ProgressSnapshot{
		Source:             SourceRewind,
		State:              state,
		VideosProcessed:    run.videosHandled,
		VideosTotal:        run.videosTotal,
		FramesImported:     framesImported,
		FramesDeduplicated: framesDeduplicated,
		FramesTotal:        run.knownFrames,
		BytesProcessed:     run.bytesProcessed,
		BytesTotal:         run.bytesTotal,
		CurrentVideo:       run.currentVideo,
		Elapsed:            time.Since(run.startedAt).Seconds(),
	}
	if tracker != nil {
		snapshot.ETASeconds = tracker.etaSeconds(run.bytesTotal - run.bytesProcessed)
	}
	d.publish(func(es EventSink) { es.ProgressUpdated(snapshot) })
}

// persist atomically replaces the source's checkpoint with a clone of the
// current state. Failures here are fatal to the run.
func (s *RewindImporter) persist() error {
	s.mu.Lock()
	clone := s.state.Clone()
	s.mu.Unlock()
	if err := s.checkpoints.Save(clone); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}
