package models

import (
	"encoding/json"
	"sort"
	"time"
)

type ProgressState string

const (
	StateIdle      ProgressState = "idle"
	StateScanning  ProgressState = "scanning"
	StateImporting ProgressState = "importing"
	StatePaused    ProgressState = "paused"
	StateCompleted ProgressState = "completed"
	StateFailed    ProgressState = "failed"
	StateCancelled ProgressState = "cancelled"
)

// Terminal reports whether a state ends an import attempt. A fresh start may
// still begin a new attempt afterwards.
func (s ProgressState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// ImportState is the durable per-source import checkpoint. ProcessedVideoPaths
// only ever grows: a path is added only after every frame of that video has
// been iterated and the checkpoint flushed.
type ImportState struct {
	Source                  string          `json:"source"`
	ProcessedVideoPaths     map[string]bool `json:"-"`
	LastVideoPath           string          `json:"lastVideoPath,omitempty"`
	LastFrameIndex          int             `json:"lastFrameIndex,omitempty"`
	ProgressState           ProgressState   `json:"progressState"`
	TotalFramesImported     int64           `json:"totalFramesImported"`
	TotalFramesDeduplicated int64           `json:"totalFramesDeduplicated"`
	ErrorMessage            string          `json:"errorMessage,omitempty"`
	StartedAt               time.Time       `json:"startedAt"`
	LastUpdatedAt           time.Time       `json:"lastUpdatedAt"`
}

func NewImportState(source string) *ImportState {
	now := time.Now().UTC()
	return &ImportState{
		Source:              source,
		ProcessedVideoPaths: make(map[string]bool),
		ProgressState:       StateIdle,
		StartedAt:           now,
		LastUpdatedAt:       now,
	}
}

func (s *ImportState) MarkProcessed(path string) {
	if s.ProcessedVideoPaths == nil {
		s.ProcessedVideoPaths = make(map[string]bool)
	}
	s.ProcessedVideoPaths[path] = true
}

func (s *ImportState) IsProcessed(path string) bool {
	return s.ProcessedVideoPaths[path]
}

// Clone returns a deep copy so readers never alias the importer's live state.
func (s *ImportState) Clone() *ImportState {
	out := *s
	out.ProcessedVideoPaths = make(map[string]bool, len(s.ProcessedVideoPaths))
	for p := range s.ProcessedVideoPaths {
		out.ProcessedVideoPaths[p] = true
	}
	return &out
}

// importStateJSON is the on-disk shape. The processed set is persisted as a
// sorted array so checkpoint files stay human readable and diffable.
type importStateJSON struct {
	Source                  string        `json:"source"`
	ProcessedVideoPaths     []string      `json:"processedVideoPaths"`
	LastVideoPath           string        `json:"lastVideoPath,omitempty"`
	LastFrameIndex          int           `json:"lastFrameIndex,omitempty"`
	ProgressState           ProgressState `json:"progressState"`
	TotalFramesImported     int64         `json:"totalFramesImported"`
	TotalFramesDeduplicated int64         `json:"totalFramesDeduplicated"`
	ErrorMessage            string        `json:"errorMessage,omitempty"`
	StartedAt               time.Time     `json:"startedAt"`
	LastUpdatedAt           time.Time     `json:"lastUpdatedAt"`
}

func (s *ImportState) MarshalJSON() ([]byte, error) {
	paths := make([]string, 0, len(s.ProcessedVideoPaths))
	for p := range s.ProcessedVideoPaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return json.Marshal(importStateJSON{
		Source:                  s.Source,
		ProcessedVideoPaths:     paths,
		LastVideoPath:           s.LastVideoPath,
		LastFrameIndex:          s.LastFrameIndex,
		ProgressState:           s.ProgressState,
		TotalFramesImported:     s.TotalFramesImported,
		TotalFramesDeduplicated: s.TotalFramesDeduplicated,
		ErrorMessage:            s.ErrorMessage,
		StartedAt:               s.StartedAt,
		LastUpdatedAt:           s.LastUpdatedAt,
	})
}

func (s *ImportState) UnmarshalJSON(data []byte) error {
	var raw importStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Source = raw.Source
	s.LastVideoPath = raw.LastVideoPath
	s.LastFrameIndex = raw.LastFrameIndex
	s.ProgressState = raw.ProgressState
	s.TotalFramesImported = raw.TotalFramesImported
	s.TotalFramesDeduplicated = raw.TotalFramesDeduplicated
	s.ErrorMessage = raw.ErrorMessage
	s.StartedAt = raw.StartedAt
	s.LastUpdatedAt = raw.LastUpdatedAt
	s.ProcessedVideoPaths = make(map[string]bool, len(raw.ProcessedVideoPaths))
	for _, p := range raw.ProcessedVideoPaths {
		s.ProcessedVideoPaths[p] = true
	}
	return nil
}
