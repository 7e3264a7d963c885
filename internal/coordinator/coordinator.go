// Package coordinator routes scan/start/pause/cancel/progress calls to the
// registered per-source importers. It holds no pipeline logic of its own.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haseab/retrace-sub007/internal/importer"
	"github.com/haseab/retrace-sub007/internal/models"
)

type Coordinator struct {
	mu        sync.RWMutex
	importers map[string]importer.Importer
}

func New() *Coordinator {
	return &Coordinator{
		importers: make(map[string]importer.Importer),
	}
}

// Register adds a source importer. Registering the same source twice replaces
// the previous importer; callers wire the registry once at startup.
func (c *Coordinator) Register(imp importer.Importer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.importers[imp.Source()] = imp
}

// Sources lists registered source identifiers, sorted.
func (c *Coordinator) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.importers))
	for source := range c.importers {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) get(source string) (importer.Importer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	imp, ok := c.importers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", importer.ErrUnknownSource, source)
	}
	return imp, nil
}

func (c *Coordinator) IsDataAvailable(source string) (bool, error) {
	imp, err := c.get(source)
	if err != nil {
		return false, err
	}
	return imp.IsDataAvailable(), nil
}

func (c *Coordinator) Scan(ctx context.Context, source string) (*models.ScanResult, error) {
	imp, err := c.get(source)
	if err != nil {
		return nil, err
	}
	return imp.Scan(ctx)
}

// StartImport runs the source's import synchronously; callers wanting a
// background run wrap it in a goroutine.
func (c *Coordinator) StartImport(ctx context.Context, source string, sink importer.EventSink) error {
	imp, err := c.get(source)
	if err != nil {
		return err
	}
	return imp.StartImport(ctx, sink)
}

func (c *Coordinator) PauseImport(source string) error {
	imp, err := c.get(source)
	if err != nil {
		return err
	}
	imp.PauseImport()
	return nil
}

func (c *Coordinator) CancelImport(source string) error {
	imp, err := c.get(source)
	if err != nil {
		return err
	}
	imp.CancelImport()
	return nil
}

func (c *Coordinator) GetState(source string) (*models.ImportState, error) {
	imp, err := c.get(source)
	if err != nil {
		return nil, err
	}
	return imp.GetState(), nil
}

// Importing reports whether the source has an in-flight import.
func (c *Coordinator) Importing(source string) (bool, error) {
	imp, err := c.get(source)
	if err != nil {
		return false, err
	}
	return imp.Importing(), nil
}

// AnyImportRunning reports whether any registered source has an in-flight
// import.
func (c *Coordinator) AnyImportRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, imp := range c.importers {
		if imp.Importing() {
			return true
		}
	}
	return false
}
