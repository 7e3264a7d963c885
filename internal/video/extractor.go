// Package video wraps ffmpeg/ffprobe for probing and per-frame decoding of
// source chunks. Every call is independently fallible; the import loop decides
// what a failure means.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/haseab/retrace-sub007/internal/models"
)

// Frame is one decoded frame as JPEG bytes plus its pixel dimensions.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// FrameSource is what the import loop consumes. The ffmpeg-backed Extractor
// implements it; tests substitute their own.
type FrameSource interface {
	Probe(ctx context.Context, path string) (*models.VideoFileDescriptor, error)
	DecodeFrame(ctx context.Context, path string, index int) (*Frame, error)
}

type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	tempDir     string
}

func NewExtractor() (*Extractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	tempDir := filepath.Join(os.TempDir(), "retrace-frames")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempDir:     tempDir,
	}, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		NbReadFrames string `json:"nb_read_frames"`
		NbFrames     string `json:"nb_frames"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Tags struct {
			CreationTime string `json:"creation_time"`
		} `json:"tags"`
	} `json:"format"`
}

// Probe returns the chunk's frame count, nominal frame rate and creation time.
// It fails with NoVideoTrackError when the container has no decodable video
// stream.
func (e *Extractor) Probe(ctx context.Context, path string) (*models.VideoFileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=codec_type,nb_read_frames,nb_frames,r_frame_rate",
		"-show_entries", "format_tags=creation_time",
		"-of", "json",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	var probe probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	desc := &models.VideoFileDescriptor{
		Path:      path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}

	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		if n, err := strconv.Atoi(s.NbReadFrames); err == nil && n > 0 {
			desc.FrameCount = n
		} else if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
			desc.FrameCount = n
		}
		desc.FrameRate = parseFrameRate(s.RFrameRate)
		break
	}
	if !found {
		return nil, &NoVideoTrackError{Path: path}
	}
	if desc.FrameCount == 0 {
		return nil, fmt.Errorf("could not determine frame count for %s", path)
	}

	// The recorder stamps the container with the capture start; fall back to
	// the file's mtime when the tag is absent.
	if t, err := time.Parse(time.RFC3339Nano, probe.Format.Tags.CreationTime); err == nil {
		desc.CreatedAt = t
	}

	return desc, nil
}

// DecodeFrame extracts a single frame by index as JPEG bytes.
func (e *Extractor) DecodeFrame(ctx context.Context, path string, index int) (*Frame, error) {
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("frame_%d_%d.jpg", time.Now().UnixNano(), index))
	defer os.Remove(tempFile)

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", path,
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", index),
		"-vframes", "1",
		"-q:v", "2",
		"-f", "mjpeg",
		tempFile)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Printf("[VIDEO] ffmpeg stderr for %s frame %d: %s", path, index, strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("failed to decode frame %d of %s: %w", index, path, err)
	}

	data, err := os.ReadFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded frame: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("frame index %d out of range for %s", index, path)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame dimensions: %w", err)
	}

	return &Frame{Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func (e *Extractor) Cleanup() error {
	return os.RemoveAll(e.tempDir)
}

// parseFrameRate handles ffprobe's rational notation ("30/1", "30000/1001").
func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
