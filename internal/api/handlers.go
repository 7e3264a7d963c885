package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/haseab/retrace-sub007/internal/coordinator"
	"github.com/haseab/retrace-sub007/internal/importer"
)

type App struct {
	Coordinator *coordinator.Coordinator

	mu      sync.RWMutex
	streams map[string]*eventStream
}

func NewApp(c *coordinator.Coordinator) *App {
	return &App{
		Coordinator: c,
		streams:     make(map[string]*eventStream),
	}
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type sourceInfo struct {
	Source        string `json:"source"`
	DataAvailable bool   `json:"dataAvailable"`
	Importing     bool   `json:"importing"`
}

func (app *App) SourcesHandler(w http.ResponseWriter, r *http.Request) {
	var out []sourceInfo
	for _, source := range app.Coordinator.Sources() {
		available, _ := app.Coordinator.IsDataAvailable(source)
		running, _ := app.Coordinator.Importing(source)
		out = append(out, sourceInfo{
			Source:        source,
			DataAvailable: available,
			Importing:     running,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (app *App) ScanHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	result, err := app.Coordinator.Scan(r.Context(), source)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, importer.ErrUnknownSource),
			errors.Is(err, importer.ErrSourceNotFound),
			errors.Is(err, importer.ErrNoVideosFound):
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (app *App) StartImportHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	running, err := app.Coordinator.Importing(source)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if running {
		writeError(w, http.StatusConflict, fmt.Errorf("import already running for %s", source))
		return
	}

	stream := newEventStream()
	app.mu.Lock()
	app.streams[source] = stream
	app.mu.Unlock()

	// The run detaches from the request; pause/cancel and the events stream
	// are the control surface from here on.
	go func() {
		defer stream.closeOnce()
		if err := app.Coordinator.StartImport(context.Background(), source, stream); err != nil {
			log.Printf("[API] import for %s ended: %v", source, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "source": source})
}

func (app *App) PauseImportHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if err := app.Coordinator.PauseImport(source); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pausing", "source": source})
}

func (app *App) CancelImportHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	if err := app.Coordinator.CancelImport(source); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "source": source})
}

func (app *App) StateHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	state, err := app.Coordinator.GetState(source)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (app *App) RunningHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": app.Coordinator.AnyImportRunning()})
}

// EventsHandler streams the current/most recent import run's events as
// server-sent events.
func (app *App) EventsHandler(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	app.mu.RLock()
	stream, ok := app.streams[source]
	app.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no import run for %s", source))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	clientGone := r.Context().Done()
	for {
		select {
		case event, ok := <-stream.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				log.Printf("[API] error marshaling event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-clientGone:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
