package storefront

import (
	"context"
	"slices"
	"sync"
)

// Taxon is a product category shown as a shop filter.
type Taxon struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Property is a product attribute shown as a shop filter.
type Property struct {
	ID           int64  `json:"id"`
	Presentation string `json:"presentation"`
}

// Catalog answers which filters apply to a distributor's shopfront in an
// order cycle. Implementations must be safe for concurrent use.
type Catalog interface {
	Taxons(ctx context.Context, orderCycleID, distributorID int64) ([]Taxon, error)
	Properties(ctx context.Context, orderCycleID, distributorID int64) ([]Property, error)
}

type listing struct {
	orderCycleID  int64
	distributorID int64
}

// MemoryCatalog is a Catalog held in memory.
type MemoryCatalog struct {
	mu         sync.RWMutex
	taxons     map[listing][]Taxon
	properties map[listing][]Property
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		taxons:     make(map[listing][]Taxon),
		properties: make(map[listing][]Property),
	}
}

// SetTaxons replaces the taxons offered by a distributor in an order cycle.
func (c *MemoryCatalog) SetTaxons(orderCycleID, distributorID int64, taxons ...Taxon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taxons[listing{orderCycleID, distributorID}] = slices.Clone(taxons)
}

// SetProperties replaces the properties offered by a distributor in an
// order cycle.
func (c *MemoryCatalog) SetProperties(orderCycleID, distributorID int64, properties ...Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties[listing{orderCycleID, distributorID}] = slices.Clone(properties)
}

// Taxons returns a copy of the listing, or an empty slice.
func (c *MemoryCatalog) Taxons(ctx context.Context, orderCycleID, distributorID int64) ([]Taxon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Clone(c.taxons[listing{orderCycleID, distributorID}])
	if out == nil {
		out = []Taxon{}
	}
	return out, nil
}

// Properties returns a copy of the listing, or an empty slice.
func (c *MemoryCatalog) Properties(ctx context.Context, orderCycleID, distributorID int64) ([]Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := slices.Clone(c.properties[listing{orderCycleID, distributorID}])
	if out == nil {
		out = []Property{}
	}
	return out, nil
}
