package extractors

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// Registry maps target types to extractor implementations. Adding a new
// target type means writing an extractor and registering it here.
type Registry struct {
	extractors map[models.TargetType]interfaces.Extractor
	logger     arbor.ILogger
}

func NewRegistry(logger arbor.ILogger) *Registry {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Registry{
		extractors: make(map[models.TargetType]interfaces.Extractor),
		logger:     logger,
	}
}

// NewDefaultRegistry returns a registry with every built-in extractor.
func NewDefaultRegistry(logger arbor.ILogger) *Registry {
	r := NewRegistry(logger)
	for _, e := range []interfaces.Extractor{
		NewLinkedInProfileExtractor(logger),
		NewCompanyWebsiteExtractor(logger),
		NewJobPostingExtractor(logger),
	} {
		if err := r.Register(e); err != nil {
			// Built-ins have unique target types; a collision here is a
			// programming error.
			panic(err)
		}
	}
	return r
}

// Register adds an extractor under its declared target type.
func (r *Registry) Register(e interfaces.Extractor) error {
	tt := e.TargetType()
	if _, exists := r.extractors[tt]; exists {
		return fmt.Errorf("extractor for target type %q is already registered", tt)
	}
	r.extractors[tt] = e
	r.logger.Info().Str("target_type", string(tt)).Msg("Registered extractor")
	return nil
}

// Get returns the extractor for targetType.
func (r *Registry) Get(targetType models.TargetType) (interfaces.Extractor, error) {
	e, ok := r.extractors[targetType]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for target type %q", targetType)
	}
	return e, nil
}

// Types lists every registered target type.
func (r *Registry) Types() []models.TargetType {
	out := make([]models.TargetType, 0, len(r.extractors))
	for tt := range r.extractors {
		out = append(out, tt)
	}
	return out
}
