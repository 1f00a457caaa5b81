package nlp

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon holds the word lists the rule-based detectors rely on
type Lexicon struct {
	Titles       []string `yaml:"titles"`
	Salutations  []string `yaml:"salutations"`
	StopWords    []string `yaml:"stopwords"`
	Months       []string `yaml:"months"`
	Weekdays     []string `yaml:"weekdays"`
	IDIndicators []string `yaml:"id_indicators"`
	IDLinkers    []string `yaml:"id_linkers"`

	titles       map[string]struct{}
	salutations  map[string]struct{}
	stopWords    map[string]struct{}
	months       map[string]struct{}
	weekdays     map[string]struct{}
	idIndicators map[string]struct{}
	idLinkers    map[string]struct{}
}

var defaultLexicon = sync.OnceValues(func() (*Lexicon, error) {
	return ParseLexicon(defaultLexiconYAML)
})

// DefaultLexicon returns the embedded lexicon, parsed once
func DefaultLexicon() (*Lexicon, error) {
	return defaultLexicon()
}

// ParseLexicon parses a YAML lexicon document
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	if len(lex.Titles) == 0 || len(lex.Months) == 0 || len(lex.IDIndicators) == 0 {
		return nil, fmt.Errorf("lexicon must define titles, months and id_indicators")
	}

	lex.titles = toSet(lex.Titles)
	lex.salutations = toSet(lex.Salutations)
	lex.stopWords = toSet(lex.StopWords)
	lex.months = toSet(lex.Months)
	lex.weekdays = toSet(lex.Weekdays)
	lex.idIndicators = toSet(lex.IDIndicators)
	lex.idLinkers = toSet(lex.IDLinkers)

	return &lex, nil
}

// LoadLexicon reads a lexicon file from disk
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return ParseLexicon(data)
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, word string) bool {
	_, ok := set[strings.ToLower(word)]
	return ok
}

// IsTitle reports whether word is an honorific ("Dr", "Pani")
func (l *Lexicon) IsTitle(word string) bool { return contains(l.titles, word) }

// IsSalutation reports whether word opens a greeting ("Dear", "Drogi")
func (l *Lexicon) IsSalutation(word string) bool { return contains(l.salutations, word) }

// IsStopWord reports whether word never belongs to a name
func (l *Lexicon) IsStopWord(word string) bool { return contains(l.stopWords, word) }

// IsMonth reports whether word is a month name or abbreviation
func (l *Lexicon) IsMonth(word string) bool { return contains(l.months, word) }

// IsWeekday reports whether word is a weekday name or abbreviation
func (l *Lexicon) IsWeekday(word string) bool { return contains(l.weekdays, word) }

// IsIDIndicator reports whether word announces an identifier ("case", "#")
func (l *Lexicon) IsIDIndicator(word string) bool { return contains(l.idIndicators, word) }

// IsIDLinker reports whether word may sit between an indicator and its value
func (l *Lexicon) IsIDLinker(word string) bool { return contains(l.idLinkers, word) }
