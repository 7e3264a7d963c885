package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haseab/retrace-sub007/internal/checkpoint"
	"github.com/haseab/retrace-sub007/internal/database"
	"github.com/haseab/retrace-sub007/internal/models"
	"github.com/haseab/retrace-sub007/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFrame renders a 16x16 grayscale PNG. Different paint functions yield
// different fingerprints; the same paint function always yields the same one.
func encodeFrame(t *testing.T, paint func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: paint(x, y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func leftDarkFrame(t *testing.T) []byte {
	return encodeFrame(t, func(x, y int) uint8 {
		if x < 8 {
			return 0
		}
		return 255
	})
}

func topDarkFrame(t *testing.T) []byte {
	return encodeFrame(t, func(x, y int) uint8 {
		if y < 8 {
			return 0
		}
		return 255
	})
}

type fakeFrameSource struct {
	mu        sync.Mutex
	descs     map[string]*models.VideoFileDescriptor
	frames    map[string][][]byte
	probeErrs map[string]error
	onDecode  func(path string, index int)
}

func newFakeFrameSource() *fakeFrameSource {
	return &fakeFrameSource{
		descs:     make(map[string]*models.VideoFileDescriptor),
		frames:    make(map[string][][]byte),
		probeErrs: make(map[string]error),
	}
}

func (f *fakeFrameSource) addVideo(path string, createdAt time.Time, frames ...[]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs[path] = &models.VideoFileDescriptor{
		Path:       path,
		CreatedAt:  createdAt,
		FrameCount: len(frames),
		FrameRate:  30,
	}
	f.frames[path] = frames
}

func (f *fakeFrameSource) Probe(ctx context.Context, path string) (*models.VideoFileDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.probeErrs[path]; err != nil {
		return nil, err
	}
	desc, ok := f.descs[path]
	if !ok {
		return nil, errors.New("unknown video " + path)
	}
	copied := *desc
	return &copied, nil
}

func (f *fakeFrameSource) DecodeFrame(ctx context.Context, path string, index int) (*video.Frame, error) {
	f.mu.Lock()
	frames := f.frames[path]
	hook := f.onDecode
	f.mu.Unlock()

	if hook != nil {
		hook(path, index)
	}
	if index >= len(frames) {
		return nil, errors.New("frame index out of range")
	}
	return &video.Frame{Data: frames[index], Width: 16, Height: 16}, nil
}

type insertedFrame struct {
	segmentID string
	index     int
	timestamp time.Time
}

type fakeFrameStore struct {
	mu       sync.Mutex
	segments map[string]string // video path -> segment id
	frames   []insertedFrame
	regions  int
	docs     []database.SearchDocument
}

func newFakeFrameStore() *fakeFrameStore {
	return &fakeFrameStore{segments: make(map[string]string)}
}

func (f *fakeFrameStore) EnsureSegment(ctx context.Context, segmentID, source, videoPath string, createdAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.segments[videoPath]; ok {
		return existing, nil
	}
	f.segments[videoPath] = segmentID
	return segmentID, nil
}

func (f *fakeFrameStore) InsertFrame(ctx context.Context, rec *models.FrameRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, insertedFrame{
		segmentID: rec.SegmentID,
		index:     rec.FrameIndex,
		timestamp: rec.Timestamp,
	})
	return "frame-id", nil
}

func (f *fakeFrameStore) InsertTextRegion(ctx context.Context, frameID string, region models.TextRegion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions++
	return nil
}

func (f *fakeFrameStore) InsertDocument(ctx context.Context, doc database.SearchDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return "doc-id", nil
}

func (f *fakeFrameStore) videoPaths() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool)
	for path := range f.segments {
		out[path] = true
	}
	return out
}

type recordingSink struct {
	mu        sync.Mutex
	started   []string
	finished  []string
	failed    []string
	snapshots []models.ProgressSnapshot
	summaries []models.ImportSummary
	runErrs   []error
}

func (r *recordingSink) VideoStarted(path string, index, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, path)
}

func (r *recordingSink) VideoFinished(path string, framesImported, framesDeduplicated int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, path)
}

func (r *recordingSink) VideoFailed(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, path)
}

func (r *recordingSink) ProgressUpdated(snapshot models.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recordingSink) ImportCompleted(summary models.ImportSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
}

func (r *recordingSink) ImportFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runErrs = append(r.runErrs, err)
}

func (r *recordingSink) lastSnapshot() (models.ProgressSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return models.ProgressSnapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

type testHarness struct {
	root        string
	source      *fakeFrameSource
	store       *fakeFrameStore
	checkpoints *checkpoint.Store
	importer    *RewindImporter
}

func newHarness(t *testing.T, batchSize int) *testHarness {
	t.Helper()
	root := t.TempDir()
	checkpoints, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)

	source := newFakeFrameSource()
	store := newFakeFrameStore()
	cfg := Config{
		Root:                   root,
		CaptureIntervalSeconds: 2.0,
		BatchSize:              batchSize,
		VideoDelay:             time.Millisecond,
		BatchDelay:             time.Millisecond,
	}
	return &testHarness{
		root:        root,
		source:      source,
		store:       store,
		checkpoints: checkpoints,
		importer:    NewRewindImporter(cfg, source, store, nil, checkpoints),
	}
}

// addChunk writes a placeholder mp4 under the root and registers its decoded
// frames with the fake source.
func (h *testHarness) addChunk(t *testing.T, name string, createdAt time.Time, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 64), 0o644))
	h.source.addVideo(path, createdAt, frames...)
	return path
}

func TestScanReportsArchiveStatistics(t *testing.T) {
	h := newHarness(t, 50)
	early := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h.addChunk(t, "chunk-001.mp4", early, leftDarkFrame(t), topDarkFrame(t))
	h.addChunk(t, "chunk-002.mp4", late, leftDarkFrame(t))

	result, err := h.importer.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceRewind, result.Source)
	assert.Equal(t, 2, result.VideoCount)
	assert.Equal(t, int64(128), result.TotalBytes)
	assert.Equal(t, 3, result.EstimatedFrames)
	assert.Equal(t, early, result.EarliestVideo)
	assert.Equal(t, late, result.LatestVideo)
	assert.Equal(t, 0, result.AlreadyProcessed)

	// Scan never mutates durable state.
	assert.Equal(t, models.StateIdle, h.importer.GetState().ProgressState)
}

func TestScanMissingRoot(t *testing.T) {
	h := newHarness(t, 50)
	h.importer.cfg.Root = filepath.Join(h.root, "does-not-exist")

	_, err := h.importer.Scan(context.Background())
	require.ErrorIs(t, err, ErrSourceNotFound)
}

func TestScanEmptyRoot(t *testing.T) {
	h := newHarness(t, 50)

	_, err := h.importer.Scan(context.Background())
	require.ErrorIs(t, err, ErrNoVideosFound)
}

func TestImportCompletes(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t), topDarkFrame(t))
	b := h.addChunk(t, "chunk-002.mp4", createdAt.Add(time.Hour), leftDarkFrame(t))

	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))

	state := h.importer.GetState()
	assert.Equal(t, models.StateCompleted, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.True(t, state.IsProcessed(b))
	assert.Equal(t, int64(3), state.TotalFramesImported)
	assert.Equal(t, int64(0), state.TotalFramesDeduplicated)
	assert.Empty(t, state.LastVideoPath)

	assert.Equal(t, []string{a, b}, sink.started)
	assert.Equal(t, []string{a, b}, sink.finished)
	require.Len(t, sink.summaries, 1)
	assert.Equal(t, 2, sink.summaries[0].VideosProcessed)
	assert.Equal(t, 0, sink.summaries[0].VideosFailed)
	assert.Equal(t, int64(3), sink.summaries[0].FramesImported)

	// The persisted checkpoint matches the in-memory outcome.
	persisted, err := h.checkpoints.Load(SourceRewind)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, models.StateCompleted, persisted.ProgressState)
	assert.True(t, persisted.IsProcessed(a))
	assert.True(t, persisted.IsProcessed(b))
}

func TestImportReconstructsTimestamps(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	// Three distinct frames spread over a 6 second window (3 frames x 2s).
	h.addChunk(t, "chunk-001.mp4", createdAt,
		leftDarkFrame(t),
		topDarkFrame(t),
		leftDarkFrame(t),
	)

	require.NoError(t, h.importer.StartImport(context.Background(), &recordingSink{}))

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	require.Len(t, h.store.frames, 3)
	assert.Equal(t, createdAt, h.store.frames[0].timestamp)
	assert.Equal(t, createdAt.Add(3*time.Second), h.store.frames[1].timestamp)
	assert.Equal(t, createdAt.Add(6*time.Second), h.store.frames[2].timestamp)
}

func TestImportDeduplicatesConsecutiveFrames(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	// Frames 1 and 2 repeat frame 0; frame 3 changes; frame 4 repeats it.
	h.addChunk(t, "chunk-001.mp4", createdAt,
		leftDarkFrame(t),
		leftDarkFrame(t),
		leftDarkFrame(t),
		topDarkFrame(t),
		topDarkFrame(t),
	)

	require.NoError(t, h.importer.StartImport(context.Background(), &recordingSink{}))

	state := h.importer.GetState()
	assert.Equal(t, int64(2), state.TotalFramesImported)
	assert.Equal(t, int64(3), state.TotalFramesDeduplicated)

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	require.Len(t, h.store.frames, 2)
	assert.Equal(t, 0, h.store.frames[0].index)
	assert.Equal(t, 3, h.store.frames[1].index)
}

func TestImportSkipsCorruptVideo(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t))
	bad := h.addChunk(t, "chunk-002.mp4", createdAt, leftDarkFrame(t))
	c := h.addChunk(t, "chunk-003.mp4", createdAt, topDarkFrame(t))
	h.source.probeErrs[bad] = errors.New("moov atom not found")

	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))

	state := h.importer.GetState()
	assert.Equal(t, models.StateCompleted, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.False(t, state.IsProcessed(bad))
	assert.True(t, state.IsProcessed(c))

	assert.Equal(t, []string{bad}, sink.failed)
	require.Len(t, sink.summaries, 1)
	assert.Equal(t, 2, sink.summaries[0].VideosProcessed)
	assert.Equal(t, 1, sink.summaries[0].VideosFailed)

	paths := h.store.videoPaths()
	assert.True(t, paths[a])
	assert.False(t, paths[bad])
	assert.True(t, paths[c])
}

func TestPauseStopsAtVideoBoundary(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t), topDarkFrame(t))
	b := h.addChunk(t, "chunk-002.mp4", createdAt, leftDarkFrame(t))

	// Request the pause while the first video is mid-decode. The video must
	// still finish before the run stops.
	h.source.onDecode = func(path string, index int) {
		if path == a && index == 0 {
			h.importer.PauseImport()
		}
	}

	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))

	state := h.importer.GetState()
	assert.Equal(t, models.StatePaused, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.False(t, state.IsProcessed(b))
	assert.Equal(t, int64(2), state.TotalFramesImported)

	snapshot, ok := sink.lastSnapshot()
	require.True(t, ok)
	assert.Equal(t, models.StatePaused, snapshot.State)
	assert.Equal(t, 1, snapshot.VideosProcessed)
	assert.Equal(t, 2, snapshot.VideosTotal)

	persisted, err := h.checkpoints.Load(SourceRewind)
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, models.StatePaused, persisted.ProgressState)
}

func TestCancelStopsAtVideoBoundary(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t))
	b := h.addChunk(t, "chunk-002.mp4", createdAt, topDarkFrame(t))

	h.source.onDecode = func(path string, index int) {
		if path == a {
			h.importer.CancelImport()
		}
	}

	err := h.importer.StartImport(context.Background(), &recordingSink{})
	require.ErrorIs(t, err, ErrImportCancelled)

	state := h.importer.GetState()
	assert.Equal(t, models.StateCancelled, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.False(t, state.IsProcessed(b))
}

func TestResumeSkipsProcessedVideos(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t), topDarkFrame(t))
	b := h.addChunk(t, "chunk-002.mp4", createdAt, leftDarkFrame(t))

	// Simulate a prior run paused after the first video.
	prior := models.NewImportState(SourceRewind)
	prior.MarkProcessed(a)
	prior.ProgressState = models.StatePaused
	prior.TotalFramesImported = 2
	require.NoError(t, h.checkpoints.Save(prior))

	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))

	state := h.importer.GetState()
	assert.Equal(t, models.StateCompleted, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.True(t, state.IsProcessed(b))
	assert.Equal(t, int64(3), state.TotalFramesImported)

	// Only the second video was actually decoded.
	assert.Equal(t, []string{b}, sink.started)
	paths := h.store.videoPaths()
	assert.False(t, paths[a])
	assert.True(t, paths[b])
}

func TestFreshAttemptAfterCompletionKeepsProcessedSet(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t))

	require.NoError(t, h.importer.StartImport(context.Background(), &recordingSink{}))
	require.Equal(t, int64(1), h.importer.GetState().TotalFramesImported)

	b := h.addChunk(t, "chunk-002.mp4", createdAt.Add(time.Hour), topDarkFrame(t))

	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))

	// Counters reset for the new attempt; the processed set carries over.
	state := h.importer.GetState()
	assert.Equal(t, models.StateCompleted, state.ProgressState)
	assert.Equal(t, int64(1), state.TotalFramesImported)
	assert.True(t, state.IsProcessed(a))
	assert.True(t, state.IsProcessed(b))
	assert.Equal(t, []string{b}, sink.started)
}

func TestIntraVideoCheckpointing(t *testing.T) {
	h := newHarness(t, 2)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	path := h.addChunk(t, "chunk-001.mp4", createdAt,
		leftDarkFrame(t),
		topDarkFrame(t),
		leftDarkFrame(t),
		topDarkFrame(t),
		leftDarkFrame(t),
	)

	var observed *models.ImportState
	h.source.onDecode = func(p string, index int) {
		if index != 4 {
			return
		}
		// By frame 4 at least one batch of 2 has been flushed.
		state, err := h.checkpoints.Load(SourceRewind)
		require.NoError(t, err)
		observed = state
	}

	require.NoError(t, h.importer.StartImport(context.Background(), &recordingSink{}))

	require.NotNil(t, observed)
	assert.Equal(t, path, observed.LastVideoPath)
	assert.GreaterOrEqual(t, observed.LastFrameIndex, 1)
	assert.False(t, observed.IsProcessed(path))

	// The marker clears once the video completes.
	final := h.importer.GetState()
	assert.Empty(t, final.LastVideoPath)
	assert.Zero(t, final.LastFrameIndex)
	assert.True(t, final.IsProcessed(path))
}

func TestSecondStartIsNoOp(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t))

	release := make(chan struct{})
	decoding := make(chan struct{})
	var once sync.Once
	h.source.onDecode = func(path string, index int) {
		once.Do(func() { close(decoding) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		done <- h.importer.StartImport(context.Background(), &recordingSink{})
	}()
	<-decoding

	assert.True(t, h.importer.Importing())
	sink := &recordingSink{}
	require.NoError(t, h.importer.StartImport(context.Background(), sink))
	assert.Empty(t, sink.started)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.importer.Importing())
}

func TestContextCancellationStopsRun(t *testing.T) {
	h := newHarness(t, 50)
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := h.addChunk(t, "chunk-001.mp4", createdAt, leftDarkFrame(t))
	b := h.addChunk(t, "chunk-002.mp4", createdAt, topDarkFrame(t))

	ctx, cancel := context.WithCancel(context.Background())
	h.source.onDecode = func(path string, index int) {
		if path == a {
			cancel()
		}
	}

	err := h.importer.StartImport(ctx, &recordingSink{})
	require.ErrorIs(t, err, ErrImportCancelled)

	state := h.importer.GetState()
	assert.Equal(t, models.StateCancelled, state.ProgressState)
	assert.True(t, state.IsProcessed(a))
	assert.False(t, state.IsProcessed(b))
}
