package models

import "time"

// VideoFileDescriptor is derived at scan time and never persisted.
type VideoFileDescriptor struct {
	Path       string
	Size       int64
	CreatedAt  time.Time
	FrameCount int
	FrameRate  float64
}

// TextRegion is one recognized text block with its pixel bounding box.
type TextRegion struct {
	Text       string  `json:"text"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// TextExtraction is the output of the external text-extraction service for a
// single decoded frame.
type TextExtraction struct {
	FullText    string       `json:"fullText"`
	Regions     []TextRegion `json:"regions"`
	AppName     string       `json:"appName,omitempty"`
	WindowTitle string       `json:"windowTitle,omitempty"`
	BrowserURL  string       `json:"browserUrl,omitempty"`
}

// FrameRecord is one surviving (non-duplicate) frame, ready for insertion into
// the destination store. Each source video maps to exactly one segment.
type FrameRecord struct {
	Source     string
	SegmentID  string
	FrameIndex int
	Timestamp  time.Time
	Image      []byte
	Width      int
	Height     int
	Extraction TextExtraction
}
