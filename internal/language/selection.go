package language

import (
	"sync"

	"github.com/MrWong99/sheng/pkg/voice"
)

// Selection tracks the currently selected profile of a [Catalog]. It is safe
// for concurrent use.
type Selection struct {
	catalog *Catalog

	mu       sync.RWMutex
	selected Profile
}

// NewSelection returns a Selection starting at the catalog's first profile.
func NewSelection(c *Catalog) *Selection {
	return &Selection{catalog: c, selected: c.First()}
}

// Select switches to the profile for code. An unknown code leaves the
// selection unchanged and returns false.
func (s *Selection) Select(code voice.LanguageCode) bool {
	p, ok := s.catalog.Lookup(code)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.selected = p
	s.mu.Unlock()
	return true
}

// Selected returns the current profile.
func (s *Selection) Selected() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Catalog returns the catalog the selection draws from.
func (s *Selection) Catalog() *Catalog { return s.catalog }
