package catalog

import "errors"

// ErrNotFound indicates the bundle id is not in the catalog.
var ErrNotFound = errors.New("bundle not found")

// Bundle is a purchasable prepaid data package. Prices are pesewas.
type Bundle struct {
	ID           string `json:"id"`
	Network      string `json:"network"`
	Title        string `json:"title"`
	PricePesewas int64  `json:"price_pesewas"`
	Description  string `json:"description"`
}

// Catalog serves the curated bundle list. The list is static; live pricing
// from the fulfillment provider is out of scope.
type Catalog struct {
	bundles []Bundle
	byID    map[string]Bundle
}

// NewStatic builds the catalog from the curated list.
func NewStatic() *Catalog {
	bundles := []Bundle{
		{ID: "5", Network: "mtn", Title: "MTN 1GB", PricePesewas: 430, Description: "MTN Non-expiry Data Bundle"},
		{ID: "6", Network: "mtn", Title: "MTN 2GB", PricePesewas: 850, Description: "MTN Non-expiry Data Bundle"},
		{ID: "20", Network: "telecel", Title: "Telecel 1GB", PricePesewas: 400, Description: "Telecel Special Data Bundle"},
	}
	byID := make(map[string]Bundle, len(bundles))
	for _, b := range bundles {
		byID[b.ID] = b
	}
	return &Catalog{bundles: bundles, byID: byID}
}

// List returns every bundle in display order.
func (c *Catalog) List() []Bundle {
	out := make([]Bundle, len(c.bundles))
	copy(out, c.bundles)
	return out
}

// Get looks a bundle up by id.
func (c *Catalog) Get(id string) (Bundle, error) {
	b, ok := c.byID[id]
	if !ok {
		return Bundle{}, ErrNotFound
	}
	return b, nil
}
