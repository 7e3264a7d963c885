package importer

import (
	"log"

	"github.com/haseab/retrace-sub007/internal/models"
)

// EventSink receives push-style notifications from an import run. Callbacks
// are invoked from a dispatcher goroutine, never from the frame loop itself,
// so a slow consumer cannot stall frame processing.
type EventSink interface {
	VideoStarted(path string, index, total int)
	VideoFinished(path string, framesImported, framesDeduplicated int64)
	VideoFailed(path string, err error)
	ProgressUpdated(snapshot models.ProgressSnapshot)
	ImportCompleted(summary models.ImportSummary)
	ImportFailed(err error)
}

// NopSink discards all events. Used when the caller has no progress consumer.
type NopSink struct{}

func (NopSink) VideoStarted(string, int, int)           {}
func (NopSink) VideoFinished(string, int64, int64)      {}
func (NopSink) VideoFailed(string, error)               {}
func (NopSink) ProgressUpdated(models.ProgressSnapshot) {}
func (NopSink) ImportCompleted(models.ImportSummary)    {}
func (NopSink) ImportFailed(error)                      {}

const eventBuffer = 256

// eventDispatcher decouples event delivery from the import loop through a
// bounded buffer. When the consumer falls behind, new events are dropped and
// counted rather than blocking the run.
type eventDispatcher struct {
	sink    EventSink
	ch      chan func(EventSink)
	done    chan struct{}
	dropped int
}

func newEventDispatcher(sink EventSink) *eventDispatcher {
	if sink == nil {
		sink = NopSink{}
	}
	d := &eventDispatcher{
		sink: sink,
		ch:   make(chan func(EventSink), eventBuffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for fn := range d.ch {
			fn(d.sink)
		}
	}()
	return d
}

func (d *eventDispatcher) publish(fn func(EventSink)) {
	select {
	case d.ch <- fn:
	default:
		d.dropped++
	}
}

// close stops the dispatcher after draining buffered events.
func (d *eventDispatcher) close() {
	close(d.ch)
	<-d.done
	if d.dropped > 0 {
		log.Printf("[IMPORT] dropped %d progress events (slow consumer)", d.dropped)
	}
}
