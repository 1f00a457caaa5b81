// Package filters provides the built-in name, date and identifier
// detectors and the static registry that wires them up.
package filters

import (
	"fmt"
	"sort"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// Options supplies the shared resources detectors are built from
type Options struct {
	// Lexicon defaults to the embedded word lists.
	Lexicon *nlp.Lexicon
	// Tagger, when set, drives name detection.
	Tagger nlp.Tagger
}

// Constructor builds one detector
type Constructor func(opts Options) (privacy.Detector, error)

var constructors = map[privacy.Category]Constructor{
	privacy.CategoryDate: func(opts Options) (privacy.Detector, error) {
		return NewDateDetector(opts.Lexicon), nil
	},
	privacy.CategoryID: func(opts Options) (privacy.Detector, error) {
		return NewIDDetector(opts.Lexicon), nil
	},
	privacy.CategoryName: func(opts Options) (privacy.Detector, error) {
		return NewNameDetector(opts.Lexicon, opts.Tagger), nil
	},
}

// Builtins lists the built-in categories in alphabetical order
func Builtins() []privacy.Category {
	cats := make([]privacy.Category, 0, len(constructors))
	for c := range constructors {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// NewRegistry builds every built-in detector once and registers it
func NewRegistry(opts Options) (*privacy.Registry, error) {
	if opts.Lexicon == nil {
		lex, err := nlp.DefaultLexicon()
		if err != nil {
			return nil, err
		}
		opts.Lexicon = lex
	}

	reg := privacy.NewRegistry()
	for _, category := range Builtins() {
		detector, err := constructors[category](opts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s detector: %w", category, err)
		}
		if err := reg.Register(category, detector); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// DefaultRegistry returns the built-in detectors with the embedded lexicon
func DefaultRegistry() (*privacy.Registry, error) {
	return NewRegistry(Options{})
}
