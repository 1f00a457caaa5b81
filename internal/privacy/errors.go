package privacy

import (
	"errors"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
)

var (
	// ErrUnknownCategory is returned when a requested category has no detector
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNoDetectors is returned when an engine would run without detectors
	ErrNoDetectors = errors.New("no detectors configured")
	// ErrDuplicateCategory is returned when a category is registered twice
	ErrDuplicateCategory = errors.New("category already registered")
	// ErrInvalidCategory is returned for category names that cannot form a
	// placeholder label
	ErrInvalidCategory = errors.New("invalid category name")
	// ErrModelUnavailable is returned when a model-backed detector cannot load
	ErrModelUnavailable = nlp.ErrModelUnavailable
)
