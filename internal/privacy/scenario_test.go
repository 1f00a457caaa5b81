package privacy_test

import (
	"encoding/json"
	"testing"

	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/privacy/filters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnonymizer(t *testing.T, categories ...string) *privacy.Anonymizer {
	t.Helper()
	reg, err := filters.DefaultRegistry()
	require.NoError(t, err)

	opts := privacy.DefaultOptions()
	opts.Categories = categories
	a, err := privacy.New(reg, opts, logger.NewNop())
	require.NoError(t, err)
	return a
}

func TestHideNameAndCase(t *testing.T) {
	a := newAnonymizer(t)

	text := "Dear Dr. John Doe, your case 12345 is being processed"
	masked := a.Hide(text)

	assert.Equal(t, "Dear Dr. <FIRST_NAME_1> <LAST_NAME_1>, your case <ID_1> is being processed", masked)
	assert.NotContains(t, masked, "John Doe")
	assert.NotContains(t, masked, "12345")
	assert.Equal(t, text, a.Fill(masked))
}

func TestNameWithTitle(t *testing.T) {
	a := newAnonymizer(t, "name")

	masked := a.Hide("Dr. Jane Wilson wrote to Professor Smith")
	assert.Contains(t, masked, "Dr. <FIRST_NAME_1> <LAST_NAME_1>")
	assert.Contains(t, masked, "Professor <FIRST_NAME_2>")
	assert.NotContains(t, masked, "Jane Wilson")
	assert.NotContains(t, masked, "Smith")
}

func TestMultipleNamesLongestFirst(t *testing.T) {
	a := newAnonymizer(t, "name")

	text := "Dr. Jane Wilson and Mr. Robert Brown had a meeting"
	masked := a.Hide(text)

	assert.Equal(t, "Dr. <FIRST_NAME_2> <LAST_NAME_2> and Mr. <FIRST_NAME_1> <LAST_NAME_1> had a meeting", masked)
	assert.Equal(t, text, a.Fill(masked))
}

func TestGrammarKeepsArticleForNames(t *testing.T) {
	a := newAnonymizer(t, "name")

	masked := a.Hide("I am a John Smith")
	assert.Equal(t, "I am a <FIRST_NAME_1> <LAST_NAME_1>", masked)
}

func TestGrammarRoundTrip(t *testing.T) {
	a := newAnonymizer(t)

	text := "Please quote a 12345 reference. A 777 reference also works."
	masked := a.Hide(text)
	assert.Equal(t, "Please quote an <ID_1> reference. An <ID_2> reference also works.", masked)
	assert.Equal(t, text, a.Fill(masked))
}

func TestGrammarDisabled(t *testing.T) {
	reg, err := filters.DefaultRegistry()
	require.NoError(t, err)
	a, err := privacy.New(reg, privacy.Options{}, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "quote a <ID_1> reference", a.Hide("quote a 12345 reference"))
}

func TestRepeatedNameSharesPlaceholder(t *testing.T) {
	a := newAnonymizer(t)

	text := "John Smith called. Later, John Smith called again."
	masked := a.Hide(text)

	assert.Equal(t, "<FIRST_NAME_1> <LAST_NAME_1> called. Later, <FIRST_NAME_1> <LAST_NAME_1> called again.", masked)
	assert.Equal(t, 2, a.Substitutions().Len())
	assert.Equal(t, text, a.Fill(masked))
}

func TestDatesAndIDs(t *testing.T) {
	a := newAnonymizer(t)

	text := "Invoice 98765 was paid on December 25th, 2023 and filed 2024/01/02."
	masked := a.Hide(text)

	assert.Equal(t, "Invoice <ID_1> was paid on <DATE_1> and filed <DATE_2>.", masked)
	assert.Equal(t, text, a.Fill(masked))
}

func TestRoundTripProperty(t *testing.T) {
	a := newAnonymizer(t)

	inputs := []string{
		"",
		"nothing personal here",
		"Mr. John Smith and Professor Alice Johnson are collaborating.",
		"Drogi Panie Tadeuszu,\nPan Tadeusz jest ważny.",
		"Reference ABC-123-XYZ was issued on 5 May 2024 to Ms. Ann Lee.",
		"An ID number 123456 and a case #42 for Jan Kowalski.",
		"Unknown tag <ID_7> typed by the user stays.",
	}

	for _, in := range inputs {
		masked := a.Hide(in)
		assert.Equal(t, in, a.Fill(masked), in)
		assert.Equal(t, masked, a.Hide(in), "deterministic: %s", in)
	}
}

func TestUnknownCategory(t *testing.T) {
	reg, err := filters.DefaultRegistry()
	require.NoError(t, err)

	_, err = privacy.New(reg, privacy.Options{Categories: []string{"name", "phone"}}, nil)
	assert.ErrorIs(t, err, privacy.ErrUnknownCategory)
}

func TestRestoreFromSavedMap(t *testing.T) {
	a := newAnonymizer(t)

	text := "Dear Dr. John Doe, please quote a 12345 reference."
	masked := a.Hide(text)

	data, err := json.Marshal(a.Substitutions())
	require.NoError(t, err)

	var saved privacy.SubstitutionMap
	require.NoError(t, json.Unmarshal(data, &saved))
	require.NotEmpty(t, saved.Articles)

	assert.Equal(t, text, privacy.Restore(masked, &saved))
	assert.Equal(t, a.Fill(masked), privacy.Restore(masked, &saved))
	assert.Equal(t, masked, privacy.Restore(masked, nil))
}
