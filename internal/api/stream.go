package api

import (
	"sync"

	"github.com/haseab/retrace-sub007/internal/models"
)

// apiEvent is the wire shape pushed over the SSE stream. Type maps to the SSE
// event name, Data to the JSON payload.
type apiEvent struct {
	Type string
	Data any
}

const streamBuffer = 128

// eventStream adapts importer events into a bounded channel for the SSE
// handler. Sends never block; events beyond the buffer are dropped.
type eventStream struct {
	ch   chan apiEvent
	once sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{ch: make(chan apiEvent, streamBuffer)}
}

func (s *eventStream) push(event apiEvent) {
	select {
	case s.ch <- event:
	default:
	}
}

func (s *eventStream) closeOnce() {
	s.once.Do(func() { close(s.ch) })
}

func (s *eventStream) VideoStarted(path string, index, total int) {
	s.push(apiEvent{Type: "video_started", Data: map[string]any{
		"path":  path,
		"index": index,
		"total": total,
	}})
}

func (s *eventStream) VideoFinished(path string, framesImported, framesDeduplicated int64) {
	s.push(apiEvent{Type: "video_finished", Data: map[string]any{
		"path":               path,
		"framesImported":     framesImported,
		"framesDeduplicated": framesDeduplicated,
	}})
}

func (s *eventStream) VideoFailed(path string, err error) {
	s.push(apiEvent{Type: "video_failed", Data: map[string]any{
		"path":  path,
		"error": err.Error(),
	}})
}

func (s *eventStream) ProgressUpdated(snapshot models.ProgressSnapshot) {
	s.push(apiEvent{Type: "progress", Data: snapshot})
}

func (s *eventStream) ImportCompleted(summary models.ImportSummary) {
	s.push(apiEvent{Type: "completed", Data: summary})
}

func (s *eventStream) ImportFailed(err error) {
	s.push(apiEvent{Type: "failed", Data: map[string]any{"error": err.Error()}})
}
