// Package nlp holds the small amount of language tooling the detectors and
// the grammar pass need: an offset-preserving tokenizer, the word lexicon
// and the optional person-entity tagger.
package nlp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PlaceholderPattern matches one placeholder tag such as <ID_1> or
// <FIRST_NAME_12>. The tokenizer keeps these atomic.
var PlaceholderPattern = regexp.MustCompile(`<[A-Z][A-Z0-9]*(?:_[A-Z][A-Z0-9]*)*_[0-9]+>`)

var anchoredPlaceholder = regexp.MustCompile(`^` + PlaceholderPattern.String())

// Kind classifies a token
type Kind int

const (
	// Word is a run of letters and digits, optionally joined by internal
	// '-', '/', '.', or apostrophes ("Jean-Luc", "2023/12/25", "ABC-123").
	Word Kind = iota
	// Punct is any single non-space rune that does not start a word or tag.
	Punct
	// Tag is a placeholder tag.
	Tag
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case Punct:
		return "punct"
	case Tag:
		return "tag"
	default:
		return "unknown"
	}
}

// Token is a slice of the input text with its byte offsets, so that
// text[t.Start:t.End] == t.Text always holds.
type Token struct {
	Text  string
	Kind  Kind
	Start int
	End   int
}

// Tokenize splits text into words, punctuation and placeholder tags.
// Whitespace is dropped; use Between to inspect it.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/4)

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '<':
			if loc := anchoredPlaceholder.FindStringIndex(text[i:]); loc != nil {
				tokens = append(tokens, Token{Text: text[i : i+loc[1]], Kind: Tag, Start: i, End: i + loc[1]})
				i += loc[1]
				continue
			}
			tokens = append(tokens, Token{Text: text[i : i+size], Kind: Punct, Start: i, End: i + size})
			i += size

		case isWordRune(r):
			end := scanWord(text, i)
			tokens = append(tokens, Token{Text: text[i:end], Kind: Word, Start: i, End: end})
			i = end

		default:
			tokens = append(tokens, Token{Text: text[i : i+size], Kind: Punct, Start: i, End: i + size})
			i += size
		}
	}

	return tokens
}

func scanWord(text string, start int) int {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r) {
			i += size
			continue
		}
		if isJoiner(r) && i+size < len(text) {
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if isWordRune(next) {
				i += size
				continue
			}
		}
		break
	}
	return i
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isJoiner(r rune) bool {
	switch r {
	case '-', '/', '.', '\'', '’':
		return true
	}
	return false
}

// IsWordChar reports whether r counts as part of a word for boundary checks.
func IsWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Lower returns the lower-cased token text
func (t Token) Lower() string {
	return strings.ToLower(t.Text)
}

// IsCapitalized reports whether the first rune is an upper-case letter
func (t Token) IsCapitalized() bool {
	r, _ := utf8.DecodeRuneInString(t.Text)
	return unicode.IsUpper(r)
}

// IsAcronym reports whether every letter is upper case and there are at
// least two of them ("ID", "NASA").
func (t Token) IsAcronym() bool {
	letters := 0
	for _, r := range t.Text {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}

// HasDigit reports whether the token contains at least one digit
func (t Token) HasDigit() bool {
	return strings.IndexFunc(t.Text, unicode.IsDigit) >= 0
}

// IsAlpha reports whether the token is a word made of letters, allowing
// internal hyphens and apostrophes.
func (t Token) IsAlpha() bool {
	if t.Kind != Word {
		return false
	}
	hasLetter := false
	for _, r := range t.Text {
		switch {
		case unicode.IsLetter(r), unicode.Is(unicode.Mn, r):
			hasLetter = true
		case r == '-', r == '\'', r == '’':
		default:
			return false
		}
	}
	return hasLetter
}

// IsNumber reports whether the token consists of digits only
func (t Token) IsNumber() bool {
	if t.Kind != Word || t.Text == "" {
		return false
	}
	for _, r := range t.Text {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Between returns the raw text separating two tokens
func Between(text string, a, b Token) string {
	if b.Start < a.End {
		return ""
	}
	return text[a.End:b.Start]
}

// IsInlineSpace reports whether s is non-empty whitespace without a line break
func IsInlineSpace(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsSpace(r) || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}

// IsSpace reports whether s consists only of whitespace (possibly empty)
func IsSpace(s string) bool {
	return strings.TrimSpace(s) == ""
}
