package privacy

// Substitution records one committed placeholder allocation
type Substitution struct {
	Category Category `json:"category"`
	Sequence int      `json:"sequence"`
	// Literal is the detector's match text; Target is the part of it that
	// was replaced (the name core for structured names).
	Literal     string   `json:"literal"`
	Target      string   `json:"target"`
	Replacement string   `json:"replacement"`
	Tags        []string `json:"tags"`
	Occurrences int      `json:"occurrences"`
}

// ArticleFix records an indefinite article rewritten in front of the n-th
// occurrence of Tag, so restoration can put the original back.
type ArticleFix struct {
	Tag        string `json:"tag"`
	Occurrence int    `json:"occurrence"`
	Original   string `json:"original"`
}

// SubstitutionMap is the reversible state built by one masking call
type SubstitutionMap struct {
	// Forward maps each placeholder tag to the literal it replaced
	Forward map[string]string `json:"forward"`
	// Reverse maps each committed match literal to its replacement sequence
	Reverse map[string]string `json:"reverse"`
	// Entries lists the commits in allocation order
	Entries  []Substitution `json:"entries"`
	Articles []ArticleFix   `json:"articles,omitempty"`
}

// NewSubstitutionMap returns an empty map
func NewSubstitutionMap() *SubstitutionMap {
	return &SubstitutionMap{
		Forward: make(map[string]string),
		Reverse: make(map[string]string),
	}
}

// Len returns the number of placeholder tags
func (m *SubstitutionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Forward)
}

// Lookup returns the original literal for a tag
func (m *SubstitutionMap) Lookup(tag string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.Forward[tag]
	return v, ok
}

// Clone returns a deep copy
func (m *SubstitutionMap) Clone() *SubstitutionMap {
	out := NewSubstitutionMap()
	if m == nil {
		return out
	}
	for k, v := range m.Forward {
		out.Forward[k] = v
	}
	for k, v := range m.Reverse {
		out.Reverse[k] = v
	}
	out.Entries = make([]Substitution, len(m.Entries))
	for i, e := range m.Entries {
		e.Tags = append([]string(nil), e.Tags...)
		out.Entries[i] = e
	}
	out.Articles = append([]ArticleFix(nil), m.Articles...)
	return out
}

// findings summarises the map per category in category order
func (m *SubstitutionMap) findings() []Finding {
	var (
		out   []Finding
		index = make(map[Category]int)
	)
	for _, e := range m.Entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, Finding{EntityType: string(e.Category)})
		}
		out[i].Placeholders++
		out[i].Occurrences += e.Occurrences
	}
	return out
}
