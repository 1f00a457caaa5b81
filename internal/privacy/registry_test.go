package privacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(category Category, texts ...string) Detector {
	return DetectorFunc(func(context.Context, string) ([]Match, error) {
		return Literals(category, texts...), nil
	})
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("name", static("name")))
	require.NoError(t, reg.Register("credit_card", static("credit_card")))

	assert.ErrorIs(t, reg.Register("name", static("name")), ErrDuplicateCategory)
	assert.ErrorIs(t, reg.Register("Bad Name", static("x")), ErrInvalidCategory)
	assert.ErrorIs(t, reg.Register("", static("x")), ErrInvalidCategory)
	assert.Error(t, reg.Register("nil_detector", nil))

	for _, reserved := range []Category{"first_name", "last_name", "first_pet"} {
		assert.ErrorIs(t, reg.Register(reserved, static(reserved)), ErrInvalidCategory, reserved)
	}
	require.NoError(t, reg.Register("firstname", static("firstname")))

	assert.Equal(t, []Category{"credit_card", "firstname", "name"}, reg.Categories())

	_, ok := reg.Lookup("name")
	assert.True(t, ok)
	_, ok = reg.Lookup("date")
	assert.False(t, ok)
}

func TestRegistryReplace(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("id", static("id", "1")))

	require.NoError(t, reg.Replace("id", static("id", "2")))
	d, _ := reg.Lookup("id")
	matches, err := d.Find(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2", matches[0].Text)

	assert.ErrorIs(t, reg.Replace("date", static("date")), ErrUnknownCategory)
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	for _, c := range []Category{"date", "id", "name"} {
		require.NoError(t, reg.Register(c, static(c)))
	}

	tests := []struct {
		name    string
		request []string
		want    []Category
		err     error
	}{
		{"nil selects all", nil, []Category{"date", "id", "name"}, nil},
		{"all keyword", []string{"all"}, []Category{"date", "id", "name"}, nil},
		{"case insensitive", []string{"NAME", " Id "}, []Category{"id", "name"}, nil},
		{"unknown fails fast", []string{"name", "phone"}, nil, ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.Resolve(tt.request)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			var cats []Category
			for c := range got {
				cats = append(cats, c)
			}
			assert.ElementsMatch(t, tt.want, cats)
		})
	}

	_, err := NewRegistry().Resolve(nil)
	assert.ErrorIs(t, err, ErrNoDetectors)
}

func TestPlaceholderFormat(t *testing.T) {
	assert.Equal(t, "<ID_3>", Placeholder(CategoryID, 3))
	assert.Equal(t, "<CREDIT_CARD_2>", Placeholder("credit_card", 2))
	assert.Equal(t, "<FIRST_NAME_1>", FirstNameTag(CategoryName, 1))
	assert.Equal(t, "<LAST_NAME_12>", LastNameTag(CategoryName, 12))

	assert.True(t, IsPlaceholder("<DATE_1>"))
	assert.False(t, IsPlaceholder("<DATE_1> "))
	assert.False(t, IsPlaceholder("<date_1>"))
	assert.False(t, IsPlaceholder("<DATE>"))

	for tag, want := range map[string]Category{
		"<FIRST_NAME_3>":  "name",
		"<LAST_NAME_1>":   "name",
		"<ID_7>":          "id",
		"<CREDIT_CARD_1>": "credit_card",
	} {
		got, ok := TagCategory(tag)
		assert.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}

	_, ok := TagCategory("plain")
	assert.False(t, ok)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name   string
		match  Match
		ok     bool
		prefix string
		core   string
	}{
		{"title first last", Match{Text: "Dr. John Doe", Name: &NameParts{Title: "Dr.", First: "John", Last: "Doe"}}, true, "Dr. ", "John Doe"},
		{"title without dot", Match{Text: "Dr. John", Name: &NameParts{Title: "Dr", First: "John"}}, true, "Dr. ", "John"},
		{"multi word last", Match{Text: "Mary Ann Smith", Name: &NameParts{First: "Mary", Last: "Ann Smith"}}, true, "", "Mary Ann Smith"},
		{"no parts", Match{Text: "John"}, false, "", ""},
		{"first missing from text", Match{Text: "John Doe", Name: &NameParts{First: "Jack", Last: "Doe"}}, false, "", ""},
		{"text before first without title", Match{Text: "Hey John", Name: &NameParts{First: "John"}}, false, "", ""},
		{"trailing text after first", Match{Text: "John Doe", Name: &NameParts{First: "John"}}, false, "", ""},
		{"empty first", Match{Text: "Doe", Name: &NameParts{Last: "Doe"}}, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := splitName(tt.match)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.prefix, n.prefix)
				assert.Equal(t, tt.core, n.core())
			}
		})
	}
}

func TestAllocateNeverReusesTag(t *testing.T) {
	text := "Bob met Mr. John Smith today"
	outcomes := []Outcome{
		{Category: "first_name", Matches: Literals("first_name", "Bob")},
		{Category: CategoryName, Matches: []Match{{
			Category: CategoryName,
			Text:     "Mr. John Smith",
			Name:     &NameParts{Title: "Mr.", First: "John", Last: "Smith"},
		}}},
	}

	masked, subs, skipped := allocate(text, outcomes)
	assert.Equal(t, "<FIRST_NAME_1> met Mr. John Smith today", masked)
	assert.Equal(t, map[string]string{"<FIRST_NAME_1>": "Bob"}, subs.Forward)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, text, restore(masked, subs))
}
