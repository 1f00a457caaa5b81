package privacy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
)

type edit struct {
	start, end int
	text       string
}

func applyEdits(text string, edits []edit) string {
	if len(edits) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(edits))
	last := 0
	for _, e := range edits {
		b.WriteString(text[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func isArticle(tok nlp.Token) bool {
	if tok.Kind != nlp.Word {
		return false
	}
	l := tok.Lower()
	return l == "a" || l == "an"
}

// articleFor chooses "a" or "an" from the first letter of the category
// name, used as a stand-in for the sound of the hidden word.
func articleFor(category Category) string {
	r, _ := utf8.DecodeRuneInString(string(category))
	if strings.ContainsRune("aeiou", unicode.ToLower(r)) {
		return "an"
	}
	return "a"
}

// matchCase gives want the capitalisation of the article it replaces
func matchCase(original, want string) string {
	r, _ := utf8.DecodeRuneInString(original)
	if !unicode.IsUpper(r) {
		return want
	}
	if len(original) > 1 && strings.ToUpper(original) == original {
		return strings.ToUpper(want)
	}
	return strings.ToUpper(want[:1]) + want[1:]
}

// articleBefore returns the index of an article token directly in front
// of tokens[i], separated only by whitespace, or -1.
func articleBefore(text string, tokens []nlp.Token, i int) int {
	if i == 0 {
		return -1
	}
	prev := tokens[i-1]
	gap := nlp.Between(text, prev, tokens[i])
	if !isArticle(prev) || gap == "" || !nlp.IsSpace(gap) {
		return -1
	}
	return i - 1
}

// fixArticles makes "a"/"an" agree with the placeholder that follows it.
// Each change is recorded so restoration can undo it. Any failure returns
// the input unchanged.
func fixArticles(text string) (out string, fixes []ArticleFix) {
	defer func() {
		if r := recover(); r != nil {
			out, fixes = text, nil
		}
	}()

	tokens := nlp.Tokenize(text)
	seen := make(map[string]int)
	var edits []edit

	for i, tok := range tokens {
		if tok.Kind != nlp.Tag {
			continue
		}
		occurrence := seen[tok.Text]
		seen[tok.Text]++

		j := articleBefore(text, tokens, i)
		if j < 0 {
			continue
		}
		category, ok := TagCategory(tok.Text)
		if !ok {
			continue
		}

		article := tokens[j]
		want := articleFor(category)
		if article.Lower() == want {
			continue
		}

		edits = append(edits, edit{start: article.Start, end: article.End, text: matchCase(article.Text, want)})
		fixes = append(fixes, ArticleFix{Tag: tok.Text, Occurrence: occurrence, Original: article.Text})
	}

	return applyEdits(text, edits), fixes
}

// revertArticles puts back the articles recorded by fixArticles. A fix is
// applied only where the same occurrence of the tag is still preceded by
// an article.
func revertArticles(text string, fixes []ArticleFix) string {
	if len(fixes) == 0 {
		return text
	}

	type key struct {
		tag        string
		occurrence int
	}
	pending := make(map[key]string, len(fixes))
	for _, f := range fixes {
		pending[key{f.Tag, f.Occurrence}] = f.Original
	}

	tokens := nlp.Tokenize(text)
	seen := make(map[string]int)
	var edits []edit

	for i, tok := range tokens {
		if tok.Kind != nlp.Tag {
			continue
		}
		k := key{tok.Text, seen[tok.Text]}
		seen[tok.Text]++

		original, ok := pending[k]
		if !ok {
			continue
		}
		if j := articleBefore(text, tokens, i); j >= 0 {
			edits = append(edits, edit{start: tokens[j].Start, end: tokens[j].End, text: original})
		}
	}

	return applyEdits(text, edits)
}
