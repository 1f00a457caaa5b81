package privacy

import (
	"context"
)

// Detector finds personal data of one category. Implementations receive the
// original, unmasked text and may return matches in any order.
type Detector interface {
	Find(ctx context.Context, text string) ([]Match, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(ctx context.Context, text string) ([]Match, error)

// Find calls f(ctx, text)
func (f DetectorFunc) Find(ctx context.Context, text string) ([]Match, error) {
	return f(ctx, text)
}

// Literals wraps plain strings as matches of one category
func Literals(category Category, texts ...string) []Match {
	matches := make([]Match, 0, len(texts))
	for _, t := range texts {
		matches = append(matches, Match{Category: category, Text: t})
	}
	return matches
}
