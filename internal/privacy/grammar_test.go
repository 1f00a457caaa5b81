package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixArticles(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		fixes int
	}{
		{"consonant category keeps a", "I am a <FIRST_NAME_1> <LAST_NAME_1>", "I am a <FIRST_NAME_1> <LAST_NAME_1>", 0},
		{"consonant category corrects an", "an <FIRST_NAME_1>", "a <FIRST_NAME_1>", 1},
		{"vowel category", "quote a <ID_1> please", "quote an <ID_1> please", 1},
		{"capitalised article", "A <ID_1> is required", "An <ID_1> is required", 1},
		{"upper case article", "AN <DATE_2>", "A <DATE_2>", 1},
		{"article must be adjacent", "a case <ID_1>", "a case <ID_1>", 0},
		{"not an article", "banana <ID_1>", "banana <ID_1>", 0},
		{"glued article ignored", "a<ID_1>", "a<ID_1>", 0},
		{"no tags", "a plain sentence", "a plain sentence", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fixes := fixArticles(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Len(t, fixes, tt.fixes)
		})
	}
}

func TestRevertArticles(t *testing.T) {
	input := "a <ID_1> and an <ID_1> and a <ID_1>"
	fixed, fixes := fixArticles(input)
	require.Equal(t, "an <ID_1> and an <ID_1> and an <ID_1>", fixed)
	require.Len(t, fixes, 2)

	assert.Equal(t, input, revertArticles(fixed, fixes))

	// a fix whose article disappeared downstream is dropped
	assert.Equal(t, "<ID_1> and an <ID_1> and a <ID_1>", revertArticles("<ID_1> and an <ID_1> and an <ID_1>", fixes))
}

func TestArticleFor(t *testing.T) {
	assert.Equal(t, "an", articleFor("id"))
	assert.Equal(t, "an", articleFor("email"))
	assert.Equal(t, "a", articleFor("name"))
	assert.Equal(t, "a", articleFor("date"))
}

func TestReplaceBounded(t *testing.T) {
	out, n := replaceBounded("Ann and Anna and Ann", "Ann", "<NAME_1>")
	assert.Equal(t, "<NAME_1> and Anna and <NAME_1>", out)
	assert.Equal(t, 2, n)

	out, n = replaceBounded("<ID_1> 1", "1", "<ID_2>")
	assert.Equal(t, "<ID_1> <ID_2>", out)
	assert.Equal(t, 1, n)

	out, n = replaceBounded("nothing here", "Bob", "<NAME_1>")
	assert.Equal(t, "nothing here", out)
	assert.Zero(t, n)

	out, n = replaceBounded("ważny Łukasz", "Łukasz", "<NAME_1>")
	assert.Equal(t, "ważny <NAME_1>", out)
	assert.Equal(t, 1, n)
}

func TestRestorerPrefersLongerTags(t *testing.T) {
	r := restorer(map[string]string{
		"<ID_1>":  "one",
		"<ID_11>": "eleven",
	})
	assert.Equal(t, "one eleven <ID_2>", r.Replace("<ID_1> <ID_11> <ID_2>"))
}
