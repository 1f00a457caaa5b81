package privacy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
)

// replaceBounded replaces every word-bounded occurrence of target in text
// with replacement. Occurrences that overlap an existing placeholder tag
// are left alone. It returns the new text and the number of replacements.
func replaceBounded(text, target, replacement string) (string, int) {
	if target == "" || !strings.Contains(text, target) {
		return text, 0
	}

	tags := nlp.PlaceholderPattern.FindAllStringIndex(text, -1)

	var (
		b     strings.Builder
		count int
		last  int
	)

	for i := 0; i <= len(text)-len(target); {
		idx := strings.Index(text[i:], target)
		if idx < 0 {
			break
		}
		start := i + idx
		end := start + len(target)

		if overlapsTag(tags, start, end) || !wordBounded(text, target, start, end) {
			_, size := utf8.DecodeRuneInString(text[start:])
			i = start + size
			continue
		}

		if count == 0 {
			b.Grow(len(text))
		}
		b.WriteString(text[last:start])
		b.WriteString(replacement)
		last = end
		i = end
		count++
	}

	if count == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), count
}

func overlapsTag(tags [][]int, start, end int) bool {
	for _, t := range tags {
		if start < t[1] && t[0] < end {
			return true
		}
	}
	return false
}

// wordBounded checks that a match whose edge is a word character is not
// glued to another word character outside the match.
func wordBounded(text, target string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(target)
	if nlp.IsWordChar(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if nlp.IsWordChar(prev) {
			return false
		}
	}

	lastRune, _ := utf8.DecodeLastRuneInString(target)
	if nlp.IsWordChar(lastRune) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if nlp.IsWordChar(next) {
			return false
		}
	}

	return true
}

// restorer builds a single-pass replacer from tags to originals. Longer
// tags come first so that no tag is shadowed by a shorter one; restored
// text is never re-scanned.
func restorer(forward map[string]string) *strings.Replacer {
	tags := make([]string, 0, len(forward))
	for tag := range forward {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if len(tags[i]) != len(tags[j]) {
			return len(tags[i]) > len(tags[j])
		}
		return tags[i] < tags[j]
	})

	pairs := make([]string, 0, 2*len(tags))
	for _, tag := range tags {
		pairs = append(pairs, tag, forward[tag])
	}
	return strings.NewReplacer(pairs...)
}

// restore reverts recorded article fixes and then replaces every known
// tag with its original. Unknown tags stay untouched.
func restore(text string, subs *SubstitutionMap) string {
	if text == "" || subs.Len() == 0 {
		return text
	}
	text = revertArticles(text, subs.Articles)
	return restorer(subs.Forward).Replace(text)
}
