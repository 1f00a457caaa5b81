package privacy

import (
	"fmt"
	"strings"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
)

const (
	firstPrefix = "FIRST_"
	lastPrefix  = "LAST_"
)

// Placeholder formats the tag for a plain category match: <ID_3>
func Placeholder(category Category, seq int) string {
	return fmt.Sprintf("<%s_%d>", strings.ToUpper(string(category)), seq)
}

// FirstNameTag formats the first-name sub-token of a structured match:
// <FIRST_NAME_1>
func FirstNameTag(category Category, seq int) string {
	return fmt.Sprintf("<%s%s_%d>", firstPrefix, strings.ToUpper(string(category)), seq)
}

// LastNameTag formats the last-name sub-token of a structured match
func LastNameTag(category Category, seq int) string {
	return fmt.Sprintf("<%s%s_%d>", lastPrefix, strings.ToUpper(string(category)), seq)
}

// IsPlaceholder reports whether s is exactly one placeholder tag
func IsPlaceholder(s string) bool {
	loc := nlp.PlaceholderPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// TagCategory returns the category a tag stands for; FIRST_ and LAST_
// sub-tokens report their parent category. ok is false for non-tags.
func TagCategory(tag string) (Category, bool) {
	if !IsPlaceholder(tag) {
		return "", false
	}
	label := tag[1 : strings.LastIndexByte(tag, '_')]
	label = strings.TrimPrefix(label, firstPrefix)
	label = strings.TrimPrefix(label, lastPrefix)
	return Category(strings.ToLower(label)), true
}

// structuredName locates the parts of a name match inside its literal
// text. prefix is the literal kept in front of the masked core (the title
// and its spacing); sep separates first and last.
type structuredName struct {
	prefix string
	first  string
	sep    string
	last   string
}

func (n structuredName) core() string {
	return n.first + n.sep + n.last
}

// splitName checks that m.Name describes m.Text exactly. Matches whose
// parts cannot be located fall back to a single tag.
func splitName(m Match) (structuredName, bool) {
	p := m.Name
	if p == nil || p.First == "" {
		return structuredName{}, false
	}

	text := m.Text
	rest := text
	if p.Title != "" {
		if !strings.HasPrefix(text, p.Title) {
			return structuredName{}, false
		}
		rest = text[len(p.Title):]
	}

	fi := strings.Index(rest, p.First)
	if fi < 0 {
		return structuredName{}, false
	}
	gap := rest[:fi]
	if p.Title == "" && gap != "" {
		return structuredName{}, false
	}
	if g := strings.TrimSpace(gap); g != "" && g != "." {
		return structuredName{}, false
	}

	firstStart := len(text) - len(rest) + fi
	firstEnd := firstStart + len(p.First)
	n := structuredName{prefix: text[:firstStart], first: p.First}

	if p.Last == "" {
		if firstEnd != len(text) {
			return structuredName{}, false
		}
		return n, true
	}

	if !strings.HasSuffix(text, p.Last) {
		return structuredName{}, false
	}
	lastStart := len(text) - len(p.Last)
	if lastStart <= firstEnd {
		return structuredName{}, false
	}
	sep := text[firstEnd:lastStart]
	if strings.TrimSpace(sep) != "" {
		return structuredName{}, false
	}

	n.sep = sep
	n.last = p.Last
	return n, true
}
