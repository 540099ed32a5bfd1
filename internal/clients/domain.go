package clients

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies meeting participants for billing.
type Category string

// Participant categories.
const (
	CategoryDomestic Category = "DOMESTIC"
	CategoryForeign  Category = "FOREIGN"
	CategoryReseller Category = "RESELLER"
)

// Valid reports whether the category is one of the known billing categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDomestic, CategoryForeign, CategoryReseller:
		return true
	}
	return false
}

// Client is a billable identity. A client whose ParentID points at a co-host
// is a sub-client; the hierarchy is exactly two levels deep.
type Client struct {
	ID       int64
	Name     string
	ParentID *int64
	IsCoHost bool
	Blocked  bool

	// Charge-per-participant overrides by category. Unset overrides fall back
	// to the configured defaults.
	RateDomestic decimal.NullDecimal
	RateForeign  decimal.NullDecimal
	RateReseller decimal.NullDecimal

	// ResaleRate is the per-participant rate the co-host charges across its
	// sub-clients' qualifying meetings.
	ResaleRate decimal.NullDecimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RateOverride returns the client's own rate for a category, if set.
func (c *Client) RateOverride(category Category) (decimal.Decimal, bool) {
	var nd decimal.NullDecimal
	switch category {
	case CategoryDomestic:
		nd = c.RateDomestic
	case CategoryForeign:
		nd = c.RateForeign
	case CategoryReseller:
		nd = c.RateReseller
	}
	if nd.Valid {
		return nd.Decimal, true
	}
	return decimal.Decimal{}, false
}

// IsSubClient reports whether the client resells through a co-host.
func (c *Client) IsSubClient() bool {
	return c.ParentID != nil
}

// CreateClientInput carries fields for registering a client.
type CreateClientInput struct {
	Name         string
	ParentID     *int64
	IsCoHost     bool
	RateDomestic decimal.NullDecimal
	RateForeign  decimal.NullDecimal
	RateReseller decimal.NullDecimal
	ResaleRate   decimal.NullDecimal
}

// UpdateClientInput carries mutable client fields.
type UpdateClientInput struct {
	Name         string
	RateDomestic decimal.NullDecimal
	RateForeign  decimal.NullDecimal
	RateReseller decimal.NullDecimal
	ResaleRate   decimal.NullDecimal
}

// ListClientsRequest filters client listings.
type ListClientsRequest struct {
	ParentID *int64
	CoHosts  bool
	Page     int
	PerPage  int
}
