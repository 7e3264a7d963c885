package models

import "time"

// ScanResult summarizes a source's on-disk archive without importing anything.
type ScanResult struct {
	Source           string    `json:"source"`
	VideoCount       int       `json:"videoCount"`
	TotalBytes       int64     `json:"totalBytes"`
	EstimatedFrames  int       `json:"estimatedFrames"`
	EarliestVideo    time.Time `json:"earliestVideo"`
	LatestVideo      time.Time `json:"latestVideo"`
	AlreadyProcessed int       `json:"alreadyProcessed"`
}

// ProgressSnapshot is pushed to the progress consumer after each video.
type ProgressSnapshot struct {
	Source             string        `json:"source"`
	State              ProgressState `json:"state"`
	VideosProcessed    int           `json:"videosProcessed"`
	VideosTotal        int           `json:"videosTotal"`
	FramesImported     int64         `json:"framesImported"`
	FramesDeduplicated int64         `json:"framesDeduplicated"`
	FramesTotal        int           `json:"framesTotal"`
	BytesProcessed     int64         `json:"bytesProcessed"`
	BytesTotal         int64         `json:"bytesTotal"`
	CurrentVideo       string        `json:"currentVideo,omitempty"`
	Elapsed            float64       `json:"elapsedSeconds"`
	ETASeconds         float64       `json:"etaSeconds"`
}

// ImportSummary is delivered once when an import run finishes.
type ImportSummary struct {
	Source             string        `json:"source"`
	VideosProcessed    int           `json:"videosProcessed"`
	VideosFailed       int           `json:"videosFailed"`
	FramesImported     int64         `json:"framesImported"`
	FramesDeduplicated int64         `json:"framesDeduplicated"`
	Duration           time.Duration `json:"duration"`
}
