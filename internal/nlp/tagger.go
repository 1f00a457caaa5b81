package nlp

import (
	"context"
	"errors"
	"strings"
)

// ErrModelUnavailable is returned when an NER model cannot be loaded, either
// because the files are missing or because the binary lacks ONNX support.
var ErrModelUnavailable = errors.New("ner model unavailable")

// Entity is a labelled span found by a Tagger. Start and End are byte offsets
// into the tagged text.
type Entity struct {
	Label string
	Text  string
	Start int
	End   int
}

// Tagger finds named entities in text
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Entity, error)
	Close() error
}

// TaggerConfig configures a model-backed tagger
type TaggerConfig struct {
	ModelPath   string
	VocabPath   string
	Labels      []string
	MaxLength   int
	Lowercase   bool
	SharedLib   string
	PersonLabel string
}

// entityType strips the IOB prefix from a label: "B-PER" -> ("B", "PER")
func entityType(label string) (prefix, typ string) {
	if len(label) > 2 && label[1] == '-' {
		return label[:1], label[2:]
	}
	return "", label
}

// groupEntities merges consecutive word labels into entity spans. labels[i]
// is the predicted label of words[i]; only spans whose type equals want are
// returned.
func groupEntities(text string, words []Token, labels []string, want string) []Entity {
	var (
		entities []Entity
		current  *Entity
	)

	flush := func() {
		if current != nil {
			current.Text = text[current.Start:current.End]
			entities = append(entities, *current)
			current = nil
		}
	}

	for i, word := range words {
		if i >= len(labels) {
			break
		}
		prefix, typ := entityType(labels[i])
		if !strings.EqualFold(typ, want) {
			flush()
			continue
		}
		if current != nil && prefix != "B" && IsInlineSpace(Between(text, words[i-1], word)) {
			current.End = word.End
			continue
		}
		flush()
		current = &Entity{Label: typ, Start: word.Start, End: word.End}
	}
	flush()

	return entities
}
