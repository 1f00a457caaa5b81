package nlp

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Special tokens expected in a BERT-style vocabulary
const (
	tokenPad = "[PAD]"
	tokenUnk = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	maxCharsPerWord = 100
)

// Vocabulary maps WordPiece tokens to model input ids
type Vocabulary struct {
	ids       map[string]int64
	lowercase bool

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

// Encoding is a model-ready, padded input together with the alignment from
// sub-word positions back to the source tokens.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	// WordIndex[i] is the index into Words of the word that produced
	// position i, or -1 for special and padding positions.
	WordIndex []int
	Words     []Token
	Truncated bool
}

// LoadVocabulary reads a vocab.txt file with one token per line; the line
// number is the id.
func LoadVocabulary(path string, lowercase bool) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer file.Close()

	var tokens []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	return NewVocabulary(tokens, lowercase)
}

// NewVocabulary builds a vocabulary from an ordered token list
func NewVocabulary(tokens []string, lowercase bool) (*Vocabulary, error) {
	v := &Vocabulary{
		ids:       make(map[string]int64, len(tokens)),
		lowercase: lowercase,
	}
	for i, tok := range tokens {
		if _, exists := v.ids[tok]; !exists {
			v.ids[tok] = int64(i)
		}
	}

	for _, special := range []struct {
		name string
		dst  *int64
	}{
		{tokenPad, &v.padID},
		{tokenUnk, &v.unkID},
		{tokenCLS, &v.clsID},
		{tokenSEP, &v.sepID},
	} {
		id, ok := v.ids[special.name]
		if !ok {
			return nil, fmt.Errorf("vocabulary is missing %s", special.name)
		}
		*special.dst = id
	}

	return v, nil
}

// Size returns the number of distinct tokens
func (v *Vocabulary) Size() int {
	return len(v.ids)
}

// WordPieces splits one word into sub-word tokens using greedy
// longest-match-first. Unknown words become [UNK].
func (v *Vocabulary) WordPieces(word string) []string {
	if v.lowercase {
		word = strings.ToLower(word)
	}
	runes := []rune(word)
	if len(runes) > maxCharsPerWord {
		return []string{tokenUnk}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		found := ""
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if _, ok := v.ids[candidate]; ok {
				found = candidate
				break
			}
			end--
		}
		if found == "" {
			return []string{tokenUnk}
		}
		pieces = append(pieces, found)
		start = end
	}

	return pieces
}

// Encode tokenizes text and produces a padded encoding of exactly maxLength
// positions: [CLS] pieces... [SEP] [PAD]...
func (v *Vocabulary) Encode(text string, maxLength int) Encoding {
	if maxLength < 2 {
		maxLength = 2
	}

	words := make([]Token, 0)
	for _, tok := range Tokenize(text) {
		if tok.Kind != Tag {
			words = append(words, tok)
		}
	}

	enc := Encoding{
		InputIDs:      make([]int64, 0, maxLength),
		AttentionMask: make([]int64, 0, maxLength),
		TokenTypeIDs:  make([]int64, maxLength),
		WordIndex:     make([]int, 0, maxLength),
		Words:         words,
	}

	enc.push(v.clsID, -1)

outer:
	for wi, word := range words {
		for _, piece := range v.WordPieces(word.Text) {
			if len(enc.InputIDs) >= maxLength-1 {
				enc.Truncated = true
				break outer
			}
			enc.push(v.ids[piece], wi)
		}
	}

	enc.push(v.sepID, -1)

	for len(enc.InputIDs) < maxLength {
		enc.InputIDs = append(enc.InputIDs, v.padID)
		enc.AttentionMask = append(enc.AttentionMask, 0)
		enc.WordIndex = append(enc.WordIndex, -1)
	}

	return enc
}

func (e *Encoding) push(id int64, wordIndex int) {
	e.InputIDs = append(e.InputIDs, id)
	e.AttentionMask = append(e.AttentionMask, 1)
	e.WordIndex = append(e.WordIndex, wordIndex)
}

// FirstPieceLabels picks, for every word that survived truncation, the
// label predicted at its first sub-word position.
func (e *Encoding) FirstPieceLabels(positionLabels []string) []string {
	labels := make([]string, 0, len(e.Words))
	seen := -1
	for pos, wi := range e.WordIndex {
		if wi < 0 || wi == seen || pos >= len(positionLabels) {
			continue
		}
		seen = wi
		labels = append(labels, positionLabels[pos])
	}
	return labels
}
