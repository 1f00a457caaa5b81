package filters

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raaihank/llm-anonymizer/internal/nlp"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexicon(t *testing.T) *nlp.Lexicon {
	t.Helper()
	lex, err := nlp.DefaultLexicon()
	require.NoError(t, err)
	return lex
}

func texts(matches []privacy.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}
	return out
}

func TestNameDetector(t *testing.T) {
	d := NewNameDetector(lexicon(t), nil)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"polish vocative", "Drogi Panie Tadeuszu, dziękuję.", []string{"Panie Tadeuszu"}},
		{"polish title", "Wczoraj Pan Tadeusz przyszedł.", []string{"Pan Tadeusz"}},
		{"english title", "Mr. John Smith is here", []string{"Mr. John Smith"}},
		{"long title", "Say hi to Professor Alice Johnson.", []string{"Professor Alice Johnson"}},
		{"salutation excluded", "Dear John Doe, thanks", []string{"John Doe"}},
		{"two names", "Dr. Jane Wilson and Mr. Robert Brown", []string{"Dr. Jane Wilson", "Mr. Robert Brown"}},
		{"sentence initial word", "Yesterday it rained. Tomorrow too.", nil},
		{"lone word mid sentence", "I met Alice yesterday", []string{"Alice"}},
		{"acronyms skipped", "The NASA report", nil},
		{"months skipped", "See you in March", nil},
		{"line break splits runs", "John\nSmith", nil},
		{"repeated name once", "John Smith. Later John Smith", []string{"John Smith"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := d.Find(context.Background(), tt.input)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, matches)
				return
			}
			assert.Equal(t, tt.want, texts(matches))
			for _, m := range matches {
				assert.Equal(t, privacy.CategoryName, m.Category)
			}
		})
	}
}

func TestNameParts(t *testing.T) {
	d := NewNameDetector(lexicon(t), nil)

	matches, err := d.Find(context.Background(), "Dear Dr. John Doe, welcome")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, "Dr. John Doe", matches[0].Text)
	assert.Equal(t, &privacy.NameParts{Title: "Dr.", First: "John", Last: "Doe"}, matches[0].Name)

	matches, err = d.Find(context.Background(), "ask Mary Ann Smith")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, &privacy.NameParts{First: "Mary", Last: "Ann Smith"}, matches[0].Name)
}

func TestDateDetector(t *testing.T) {
	d := NewDateDetector(lexicon(t))

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"iso slashes", "Due on 2023/12/25 at noon", []string{"2023/12/25"}},
		{"month ordinal year", "Signed December 25th, 2023 by both", []string{"December 25th, 2023"}},
		{"dashes", "Meeting 12-25-2023 confirmed", []string{"12-25-2023"}},
		{"dotted european", "Urodzony 25.12.1990 w Krakowie", []string{"25.12.1990"}},
		{"day month year", "We left on 5 May 2024.", []string{"5 May 2024"}},
		{"month year", "Since March 2020 nothing changed", []string{"March 2020"}},
		{"month alone", "See you in March", nil},
		{"number alone", "I have 3 cats", nil},
		{"long number is not a year", "May 123456", nil},
		{"comma needs a space", "May 5,2024", []string{"May 5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := d.Find(context.Background(), tt.input)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, matches)
				return
			}
			assert.Equal(t, tt.want, texts(matches))
		})
	}
}

func TestIDDetector(t *testing.T) {
	d := NewIDDetector(lexicon(t))

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"case number", "your case 12345 is open", []string{"12345"}},
		{"reference with letters", "Reference ABC-123-XYZ was issued", []string{"ABC-123-XYZ"}},
		{"id number", "ID number 123456", []string{"123456"}},
		{"linker", "The ticket is: 9981", []string{"9981"}},
		{"hash", "see #42", []string{"42"}},
		{"indicator after", "quote 12345 reference", []string{"12345"}},
		{"too many linkers", "order is is is 77", nil},
		{"plain number", "I have 3 cats", nil},
		{"indicator on previous line", "case\n12345", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := d.Find(context.Background(), tt.input)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, matches)
				return
			}
			assert.Equal(t, tt.want, texts(matches))
		})
	}
}

// fakeTagger labels every occurrence of the configured words as PER
type fakeTagger struct {
	people []string
	err    error
}

func (f *fakeTagger) Tag(_ context.Context, text string) ([]nlp.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []nlp.Entity
	for _, p := range f.people {
		if i := strings.Index(text, p); i >= 0 {
			out = append(out, nlp.Entity{Label: "PER", Text: p, Start: i, End: i + len(p)})
		}
	}
	return out, nil
}

func (f *fakeTagger) Close() error { return nil }

func TestNameDetectorWithTagger(t *testing.T) {
	tagger := &fakeTagger{people: []string{"Jane Wilson", "bob"}}
	d := NewNameDetector(lexicon(t), tagger)

	matches, err := d.Find(context.Background(), "Please call Dr. Jane Wilson and bob")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "Dr. Jane Wilson", matches[0].Text)
	assert.Equal(t, &privacy.NameParts{Title: "Dr.", First: "Jane", Last: "Wilson"}, matches[0].Name)
	assert.Equal(t, "bob", matches[1].Text)

	tagger.err = errors.New("session closed")
	_, err = d.Find(context.Background(), "Jane Wilson")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []privacy.Category{"date", "id", "name"}, Builtins())

	reg, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, Builtins(), reg.Categories())

	for _, c := range Builtins() {
		d, ok := reg.Lookup(c)
		require.True(t, ok, c)
		assert.NotNil(t, d)
	}

	reg, err = NewRegistry(Options{Tagger: &fakeTagger{people: []string{"Ann"}}})
	require.NoError(t, err)
	d, _ := reg.Lookup(privacy.CategoryName)
	matches, err := d.Find(context.Background(), "hello Ann")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann"}, texts(matches))
}
