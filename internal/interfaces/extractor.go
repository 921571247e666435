package interfaces

import (
	"context"

	"github.com/morket/scraper/internal/models"
)

// Extractor pulls raw field values out of a loaded page for one target
// type. Extractors return raw strings; normalization happens afterwards.
type Extractor interface {
	// TargetType names the page kind this extractor handles.
	TargetType() models.TargetType

	// ReadySelector is the selector extraction waits on before reading
	// fields.
	ReadySelector() string

	// Extract reads the requested fields from the page. A nil or empty
	// requestedFields means all fields of the target schema. Fields that
	// cannot be read come back nil, not as an error. targetURL fills the
	// schema's URL field.
	Extract(ctx context.Context, page Page, targetURL string, requestedFields []string) (map[string]interface{}, error)
}
