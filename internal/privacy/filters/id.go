package filters

import (
	"context"
	"strings"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// maxLinkers bounds how many linking tokens ("is", ":") may separate an
// indicator from the identifier.
const maxLinkers = 2

// IDDetector finds identifiers: tokens containing a digit ("12345",
// "ABC-123-XYZ") next to an indicator word such as "case" or "reference".
type IDDetector struct {
	lex *nlp.Lexicon
}

// NewIDDetector creates an identifier detector
func NewIDDetector(lex *nlp.Lexicon) *IDDetector {
	return &IDDetector{lex: lex}
}

// Find returns the identifiers in text
func (d *IDDetector) Find(_ context.Context, text string) ([]privacy.Match, error) {
	if text == "" {
		return nil, nil
	}

	tokens := nlp.Tokenize(text)
	out := newCollector()

	for i, tok := range tokens {
		if tok.Kind != nlp.Word || !tok.HasDigit() {
			continue
		}
		if d.indicatorBefore(text, tokens, i) || d.indicatorAfter(text, tokens, i) {
			out.add(privacy.Match{Category: privacy.CategoryID, Text: tok.Text})
		}
	}

	return out.matches, nil
}

func sameLine(text string, a, b nlp.Token) bool {
	return !strings.ContainsAny(nlp.Between(text, a, b), "\n\r")
}

func (d *IDDetector) indicatorBefore(text string, tokens []nlp.Token, i int) bool {
	linkers := 0
	for j := i - 1; j >= 0; j-- {
		if !sameLine(text, tokens[j], tokens[j+1]) {
			return false
		}
		if d.lex.IsIDIndicator(tokens[j].Text) {
			return true
		}
		if !d.lex.IsIDLinker(tokens[j].Text) || linkers == maxLinkers {
			return false
		}
		linkers++
	}
	return false
}

func (d *IDDetector) indicatorAfter(text string, tokens []nlp.Token, i int) bool {
	if i+1 >= len(tokens) || !sameLine(text, tokens[i], tokens[i+1]) {
		return false
	}
	next := tokens[i+1]
	return next.Kind == nlp.Word && d.lex.IsIDIndicator(next.Text)
}
