package privacy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts Options, detectors map[Category]Detector) *Anonymizer {
	t.Helper()
	reg := NewRegistry()
	for c, d := range detectors {
		require.NoError(t, reg.Register(c, d))
	}
	a, err := New(reg, opts, logger.NewNop())
	require.NoError(t, err)
	return a
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrNoDetectors)

	reg := NewRegistry()
	require.NoError(t, reg.Register("id", static("id")))
	_, err = New(reg, Options{Categories: []string{"phone"}}, nil)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestHideLongestFirst(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"name": static("name", "John", "John Smith"),
	})

	masked := a.Hide("John Smith met John.")
	assert.Equal(t, "<NAME_1> met <NAME_2>.", masked)

	subs := a.Substitutions()
	assert.Equal(t, "John Smith", subs.Forward["<NAME_1>"])
	assert.Equal(t, "John", subs.Forward["<NAME_2>"])
}

func TestHideShadowedMatchConsumesNoNumber(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"name": static("name", "Smith", "John Smith", "Jane"),
	})

	masked := a.Hide("John Smith and Jane")
	assert.Equal(t, "<NAME_1> and <NAME_2>", masked)
	assert.Equal(t, 2, a.Substitutions().Len())
}

func TestHideCrossCategoryClaim(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"date": static("date", "2023"),
		"id":   static("id", "2023", "7"),
	})

	text := "filed 2023 as 7"
	masked := a.Hide(text)
	assert.Equal(t, "filed <DATE_1> as <ID_1>", masked)

	subs := a.Substitutions()
	assert.Equal(t, "<DATE_1>", subs.Reverse["2023"])
	assert.Equal(t, text, a.Fill(masked))
}

func TestHideWordBoundaries(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "123"),
	})

	assert.Equal(t, "1234 and <ID_1> and x123", a.Hide("1234 and 123 and x123"))
	assert.Equal(t, "(<ID_1>)", a.Hide("(123)"))
}

func TestHideDoesNotCorruptTags(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id":   static("id", "1", "ID"),
		"name": static("name", "NAME"),
	})

	text := "ID 1 and NAME"
	masked := a.Hide(text)
	assert.Equal(t, "<ID_1> <ID_2> and <NAME_1>", masked)
	assert.Equal(t, text, a.Fill(masked))
}

func TestHideRejectsEmptyLiteral(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "", "42"),
	})
	assert.Equal(t, "<ID_1>", a.Hide("42"))
}

func TestStructuredNameFallback(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"name": DetectorFunc(func(context.Context, string) ([]Match, error) {
			return []Match{
				{Text: "Dr. John Doe", Name: &NameParts{Title: "Dr.", First: "John", Last: "Doe"}},
				{Text: "Jo Lee", Name: &NameParts{First: "Joanna", Last: "Lee"}},
			}, nil
		}),
	})

	text := "Dr. John Doe and Jo Lee"
	masked := a.Hide(text)
	assert.Equal(t, "Dr. <FIRST_NAME_1> <LAST_NAME_1> and <NAME_2>", masked)
	assert.Equal(t, text, a.Fill(masked))
}

func TestFill(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "12345"),
	})

	masked := a.Hide("case 12345")
	require.Equal(t, "case <ID_1>", masked)

	t.Run("unknown tags untouched", func(t *testing.T) {
		assert.Equal(t, "<ID_9> and 12345", a.Fill("<ID_9> and <ID_1>"))
	})

	t.Run("idempotent", func(t *testing.T) {
		once := a.Fill(masked)
		assert.Equal(t, once, a.Fill(once))
	})

	t.Run("transformed text", func(t *testing.T) {
		assert.Equal(t, "Your case 12345 was closed.", a.Fill("Your case <ID_1> was closed."))
	})
}

func TestEmptyInput(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "42"),
	})

	require.Equal(t, "<ID_1>", a.Hide("42"))
	assert.Equal(t, "", a.Hide(""))
	assert.Equal(t, "", a.Fill(""))
	// empty hide leaves the previous map in place
	assert.Equal(t, "42", a.Fill("<ID_1>"))
}

func TestHideResetsMap(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": DetectorFunc(func(_ context.Context, text string) ([]Match, error) {
			return Literals("id", text), nil
		}),
	})

	a.Hide("first")
	a.Hide("second")

	subs := a.Substitutions()
	assert.Equal(t, map[string]string{"<ID_1>": "second"}, subs.Forward)
	assert.Equal(t, "second", a.Fill("<ID_1>"))
}

func TestSubstitutionsIsACopy(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "42"),
	})
	a.Hide("42")

	snap := a.Substitutions()
	snap.Forward["<ID_1>"] = "tampered"
	assert.Equal(t, "42", a.Fill("<ID_1>"))
}

func TestDegradedDetectors(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"broken": DetectorFunc(func(context.Context, string) ([]Match, error) {
			return nil, errors.New("tagger exploded")
		}),
		"panicky": DetectorFunc(func(context.Context, string) ([]Match, error) {
			panic("index out of range")
		}),
		"id": static("id", "42"),
	})

	res := a.Process(context.Background(), "order 42")
	assert.Equal(t, "order <ID_1>", res.MaskedText)
	assert.Equal(t, []string{"broken", "panicky"}, res.Degraded)
	assert.Equal(t, []Finding{{EntityType: "id", Placeholders: 1, Occurrences: 1}}, res.Findings)
}

func TestAggregatorWithoutLogger(t *testing.T) {
	agg := NewAggregator(map[Category]Detector{
		"broken": DetectorFunc(func(context.Context, string) ([]Match, error) {
			return nil, errors.New("tagger exploded")
		}),
		"id": static("id", "42"),
	}, false, nil, nil)

	var outcomes []Outcome
	require.NotPanics(t, func() {
		outcomes = agg.Aggregate(context.Background(), "order 42")
	})
	require.Len(t, outcomes, 2)
	assert.Equal(t, Category("broken"), outcomes[0].Category)
	assert.True(t, outcomes[0].Degraded)
	assert.Len(t, outcomes[1].Matches, 1)
}

func TestCancelledContextDegrades(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id": static("id", "42"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := a.Process(ctx, "order 42")
	assert.Equal(t, "order 42", res.MaskedText)
	assert.Equal(t, []string{"id"}, res.Degraded)
}

func TestDeterminism(t *testing.T) {
	detectors := map[Category]Detector{
		"date": static("date", "May 5", "2024"),
		"id":   static("id", "5", "A-1", "2024"),
		"name": static("name", "Ann", "Ann Lee"),
	}
	text := "Ann Lee filed A-1 on May 5 2024; Ann agreed 5 times."

	seq := newEngine(t, Options{PreserveGrammar: true}, detectors)
	par := newEngine(t, Options{PreserveGrammar: true, Parallel: true}, detectors)

	first := seq.Hide(text)
	assert.Equal(t, first, seq.Hide(text))
	assert.Equal(t, first, par.Hide(text))
	assert.Equal(t, text, seq.Fill(first))
}

func TestFindings(t *testing.T) {
	a := newEngine(t, DefaultOptions(), map[Category]Detector{
		"id":   static("id", "42", "7"),
		"name": static("name", "Ann"),
	})

	res := a.Process(context.Background(), "Ann: 42, 42 and 7")
	assert.Equal(t, []Finding{
		{EntityType: "id", Placeholders: 2, Occurrences: 3},
		{EntityType: "name", Placeholders: 1, Occurrences: 1},
	}, res.Findings)
	assert.Equal(t, map[string]int{"id": 2, "name": 1}, res.Counts())
	assert.Equal(t, "Ann: 42, 42 and 7", res.Original)
}

type recordingObserver struct {
	mu        sync.Mutex
	detectors []Category
	masked    int
	restored  int
}

func (o *recordingObserver) DetectorFinished(c Category, _ int, _ bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detectors = append(o.detectors, c)
}

func (o *recordingObserver) Masked(ProcessResult, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.masked++
}

func (o *recordingObserver) Restored(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.restored++
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	a := newEngine(t, Options{Observer: obs, Parallel: true}, map[Category]Detector{
		"id":   static("id", "1"),
		"date": static("date"),
	})

	a.Fill(a.Hide("1"))
	assert.Equal(t, []Category{"date", "id"}, obs.detectors)
	assert.Equal(t, 1, obs.masked)
	assert.Equal(t, 1, obs.restored)
}
