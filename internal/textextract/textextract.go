// Package textextract defines the text-extraction collaborator the import
// pipeline hands decoded frames to. The service is treated as opaque, possibly
// slow and fallible; a failed extraction skips that one frame only.
package textextract

import (
	"context"

	"github.com/haseab/retrace-sub007/internal/models"
)

type Extractor interface {
	ExtractText(ctx context.Context, imageData []byte) (*models.TextExtraction, error)
}

// Noop returns empty extractions. Used when no recognizer is configured so
// frames are still imported and timestamp-searchable.
type Noop struct{}

func (Noop) ExtractText(ctx context.Context, imageData []byte) (*models.TextExtraction, error) {
	return &models.TextExtraction{}, nil
}
