package privacy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// AllCategories selects every registered category when passed to Resolve
const AllCategories = "all"

var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z][a-z0-9]*)*$`)

// Registry maps category names to their detectors. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	detectors map[Category]Detector
}

// ValidCategory reports whether category can be registered
func ValidCategory(category Category) bool {
	name := string(category)
	if !categoryPattern.MatchString(name) {
		return false
	}
	upper := strings.ToUpper(name)
	return !strings.HasPrefix(upper, firstPrefix) && !strings.HasPrefix(upper, lastPrefix)
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[Category]Detector)}
}

// Register adds a detector under category. Category names are lower-case
// identifiers such as "name" or "credit_card". Names starting with "first_"
// or "last_" are reserved: their tags would read as structured name
// sub-tokens.
func (r *Registry) Register(category Category, detector Detector) error {
	if !ValidCategory(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if detector == nil {
		return fmt.Errorf("nil detector for category %q", category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detectors[category]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, category)
	}
	r.detectors[category] = detector
	return nil
}

// Replace swaps the detector of an existing category, e.g. to wrap it
// with a cache.
func (r *Registry) Replace(category Category, detector Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detectors[category]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	r.detectors[category] = detector
	return nil
}

// Lookup returns the detector registered for category
func (r *Registry) Lookup(category Category) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[category]
	return d, ok
}

// Categories returns the registered categories in alphabetical order
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]Category, 0, len(r.detectors))
	for c := range r.detectors {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Resolve selects detectors by name. An empty list or "all" selects every
// category. Names match case-insensitively; an unknown name is an error.
func (r *Registry) Resolve(names []string) (map[Category]Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.detectors) == 0 {
		return nil, ErrNoDetectors
	}

	selected := make(map[Category]Detector)
	if len(names) == 0 {
		for c, d := range r.detectors {
			selected[c] = d
		}
		return selected, nil
	}

	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == AllCategories {
			for c, d := range r.detectors {
				selected[c] = d
			}
			continue
		}

		d, ok := r.detectors[Category(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
		}
		selected[Category(name)] = d
	}

	if len(selected) == 0 {
		return nil, ErrNoDetectors
	}

	return selected, nil
}
