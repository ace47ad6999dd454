package assets

import (
	"sync"

	"github.com/irfndi/coinsight-go/internal/models"
)

// AssetSetter receives the committed choice. The analysis parameter state
// implements it.
type AssetSetter interface {
	SetAsset(asset models.AssetDescriptor)
}

// Selector tracks a pending free-text query against a catalog and commits a
// chosen asset into the parameter state.
type Selector struct {
	catalog *Catalog
	target  AssetSetter

	mu    sync.Mutex
	query string
}

func NewSelector(catalog *Catalog, target AssetSetter) *Selector {
	return &Selector{catalog: catalog, target: target}
}

// SetQuery records the query and returns its matches.
func (s *Selector) SetQuery(query string) []models.AssetDescriptor {
	s.mu.Lock()
	s.query = query
	s.mu.Unlock()
	return s.catalog.Search(query)
}

// Query returns the pending query text.
func (s *Selector) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Search matches without touching the pending query.
func (s *Selector) Search(query string) []models.AssetDescriptor {
	return s.catalog.Search(query)
}

// Select commits asset into the parameter state and clears the query.
func (s *Selector) Select(asset models.AssetDescriptor) {
	s.target.SetAsset(asset)
	s.mu.Lock()
	s.query = ""
	s.mu.Unlock()
}
