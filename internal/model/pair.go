package model

import "github.com/shopspring/decimal"

// CurrencyPair is one catalog row. Pairs without a contract size are
// ineligible: kept in the catalog but never subscribed and never ticked.
type CurrencyPair struct {
	Symbol       string
	ContractSize decimal.NullDecimal
}

// Eligible reports whether the pair has a known contract size.
func (p CurrencyPair) Eligible() bool {
	return p.ContractSize.Valid
}

// Catalog is the immutable pair catalog built once at bootstrap.
// Safe for concurrent readers; never mutated after construction.
type Catalog struct {
	pairs    []CurrencyPair
	eligible []string
	sizes    map[string]decimal.Decimal
}

// NewCatalog builds a catalog from loaded pairs.
func NewCatalog(pairs []CurrencyPair) *Catalog {
	c := &Catalog{
		pairs: pairs,
		sizes: make(map[string]decimal.Decimal, len(pairs)),
	}
	for _, p := range pairs {
		if p.Eligible() {
			c.eligible = append(c.eligible, p.Symbol)
			c.sizes[p.Symbol] = p.ContractSize.Decimal
		}
	}
	return c
}

// ContractSize returns the contract size for an eligible symbol.
func (c *Catalog) ContractSize(symbol string) (decimal.Decimal, bool) {
	cs, ok := c.sizes[symbol]
	return cs, ok
}

// Eligible returns the symbols that can be subscribed, in catalog order.
func (c *Catalog) Eligible() []string {
	return c.eligible
}

// Pairs returns every catalog row, eligible or not.
func (c *Catalog) Pairs() []CurrencyPair {
	return c.pairs
}

// Len returns the number of catalog rows.
func (c *Catalog) Len() int {
	return len(c.pairs)
}
