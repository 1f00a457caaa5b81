package filters

import (
	"context"
	"regexp"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

var (
	numericDatePattern = regexp.MustCompile(`^(?:\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})$`)
	ordinalPattern     = regexp.MustCompile(`(?i)^\d{1,2}(?:st|nd|rd|th)$`)
)

// DateDetector finds month-name expressions ("December 25th, 2023",
// "5 May 2024") and numeric dates ("2023/12/25", "25.12.2023").
type DateDetector struct {
	lex *nlp.Lexicon
}

// NewDateDetector creates a date detector
func NewDateDetector(lex *nlp.Lexicon) *DateDetector {
	return &DateDetector{lex: lex}
}

// Find returns the dates in text
func (d *DateDetector) Find(_ context.Context, text string) ([]privacy.Match, error) {
	if text == "" {
		return nil, nil
	}

	tokens := nlp.Tokenize(text)
	out := newCollector()

	var (
		run       []nlp.Token
		comma     *nlp.Token
		hasMonth  bool
		hasNumber bool
	)

	flush := func() {
		if len(run) > 0 && hasMonth && hasNumber {
			out.add(privacy.Match{
				Category: privacy.CategoryDate,
				Text:     text[run[0].Start:run[len(run)-1].End],
			})
		}
		run, comma, hasMonth, hasNumber = nil, nil, false, false
	}

	for i := range tokens {
		tok := tokens[i]

		if tok.Kind == nlp.Word && numericDatePattern.MatchString(tok.Text) {
			flush()
			out.add(privacy.Match{Category: privacy.CategoryDate, Text: tok.Text})
			continue
		}

		month := d.isMonth(tok)
		number := isDateNumber(tok)

		switch {
		case month || number:
			if len(run) > 0 {
				prev := run[len(run)-1]
				if comma != nil {
					prev = *comma
				}
				if !nlp.IsInlineSpace(nlp.Between(text, prev, tok)) {
					flush()
				}
			}
			run = append(run, tok)
			comma = nil
			hasMonth = hasMonth || month
			hasNumber = hasNumber || number

		case tok.Text == "," && len(run) > 0 && comma == nil && tok.Start == run[len(run)-1].End:
			comma = &tokens[i]

		default:
			flush()
		}
	}
	flush()

	return out.matches, nil
}

func (d *DateDetector) isMonth(tok nlp.Token) bool {
	return tok.IsAlpha() && tok.IsCapitalized() && d.lex.IsMonth(tok.Text)
}

func isDateNumber(tok nlp.Token) bool {
	if tok.IsNumber() {
		return len(tok.Text) <= 4
	}
	return tok.Kind == nlp.Word && ordinalPattern.MatchString(tok.Text)
}
