package filters

import (
	"context"
	"fmt"
	"strings"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// NameDetector finds personal names. Without a tagger it uses runs of
// capitalised words and honorific titles; with one it uses the tagger's
// person entities and attaches any title in front of them.
type NameDetector struct {
	lex    *nlp.Lexicon
	tagger nlp.Tagger
}

// NewNameDetector creates a name detector. tagger may be nil.
func NewNameDetector(lex *nlp.Lexicon, tagger nlp.Tagger) *NameDetector {
	return &NameDetector{lex: lex, tagger: tagger}
}

// nameRun is a candidate name being assembled from consecutive tokens
type nameRun struct {
	title         string
	start         int
	last          nlp.Token
	words         []nlp.Token
	sentenceStart bool
}

func (r *nameRun) active() bool {
	return r.title != "" || len(r.words) > 0
}

// Find returns the names in text
func (d *NameDetector) Find(ctx context.Context, text string) ([]privacy.Match, error) {
	if text == "" {
		return nil, nil
	}
	if d.tagger != nil {
		return d.findTagged(ctx, text)
	}

	tokens := nlp.Tokenize(text)
	out := newCollector()
	var run nameRun

	flush := func() {
		if m, ok := d.buildMatch(text, run); ok {
			out.add(m)
		}
		run = nameRun{}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if d.isTitle(tok) {
			flush()
			run = nameRun{start: tok.Start, last: tok}
			if i+1 < len(tokens) && tokens[i+1].Text == "." && tokens[i+1].Start == tok.End {
				i++
				run.last = tokens[i]
			}
			run.title = text[tok.Start:run.last.End]
			continue
		}

		if d.isNameWord(tok) {
			if run.active() && nlp.IsInlineSpace(nlp.Between(text, run.last, tok)) {
				run.words = append(run.words, tok)
				run.last = tok
				continue
			}
			flush()
			run = nameRun{
				start:         tok.Start,
				last:          tok,
				words:         []nlp.Token{tok},
				sentenceStart: sentenceStart(text, tokens, i),
			}
			continue
		}

		flush()
	}
	flush()

	return out.matches, nil
}

func (d *NameDetector) isTitle(tok nlp.Token) bool {
	return tok.IsAlpha() && tok.IsCapitalized() && d.lex.IsTitle(tok.Text)
}

func (d *NameDetector) isNameWord(tok nlp.Token) bool {
	if !tok.IsAlpha() || !tok.IsCapitalized() || tok.IsAcronym() {
		return false
	}
	return !d.lex.IsStopWord(tok.Text) &&
		!d.lex.IsSalutation(tok.Text) &&
		!d.lex.IsMonth(tok.Text) &&
		!d.lex.IsWeekday(tok.Text)
}

func (d *NameDetector) buildMatch(text string, run nameRun) (privacy.Match, bool) {
	if len(run.words) == 0 {
		return privacy.Match{}, false
	}
	// A lone capitalised word opening a sentence is most likely not a name.
	if run.title == "" && len(run.words) == 1 && run.sentenceStart {
		return privacy.Match{}, false
	}
	return nameMatch(text, run.start, run.title, run.words), true
}

func nameMatch(text string, start int, title string, words []nlp.Token) privacy.Match {
	first := words[0]
	lastWord := words[len(words)-1]

	parts := &privacy.NameParts{Title: title, First: first.Text}
	if len(words) > 1 {
		parts.Last = text[words[1].Start:lastWord.End]
	}

	return privacy.Match{
		Category: privacy.CategoryName,
		Text:     text[start:lastWord.End],
		Name:     parts,
	}
}

// sentenceStart reports whether tokens[i] opens a sentence or a line
func sentenceStart(text string, tokens []nlp.Token, i int) bool {
	if i == 0 {
		return true
	}
	prev := tokens[i-1]
	if strings.ContainsAny(nlp.Between(text, prev, tokens[i]), "\n\r") {
		return true
	}
	if prev.Kind != nlp.Punct {
		return false
	}
	switch prev.Text {
	case ".", "!", "?", ":", ";", "\"", "“", "(", "-", "–":
		return true
	}
	return false
}

func (d *NameDetector) findTagged(ctx context.Context, text string) ([]privacy.Match, error) {
	entities, err := d.tagger.Tag(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ner tagging failed: %w", err)
	}

	tokens := nlp.Tokenize(text)
	out := newCollector()

	for _, e := range entities {
		var words []nlp.Token
		first := -1
		for i, tok := range tokens {
			if tok.Start >= e.Start && tok.End <= e.End && tok.Kind == nlp.Word {
				if first < 0 {
					first = i
				}
				words = append(words, tok)
			}
		}
		if len(words) == 0 {
			continue
		}

		start, title := words[0].Start, ""
		if ts, tt, ok := d.titleBefore(text, tokens, first); ok {
			start, title = ts, tt
		}
		out.add(nameMatch(text, start, title, words))
	}

	return out.matches, nil
}

// titleBefore looks for "Title" or "Title." directly in front of tokens[i]
func (d *NameDetector) titleBefore(text string, tokens []nlp.Token, i int) (int, string, bool) {
	j := i - 1
	if j < 0 || !nlp.IsInlineSpace(nlp.Between(text, tokens[j], tokens[i])) {
		return 0, "", false
	}
	end := tokens[j].End
	if tokens[j].Text == "." && j > 0 && tokens[j-1].End == tokens[j].Start {
		j--
	}
	if !d.isTitle(tokens[j]) {
		return 0, "", false
	}
	return tokens[j].Start, text[tokens[j].Start:end], true
}
