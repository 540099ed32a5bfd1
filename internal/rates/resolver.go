// Package rates resolves the charge-per-participant rate applicable to a
// client and participant category. Resolution is a pure lookup: client
// override first, configured default second, hard error when neither exists.
package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/shared"
)

// ClientSource supplies client records for rate lookups.
type ClientSource interface {
	GetClient(ctx context.Context, id int64) (*clients.Client, error)
}

// Defaults holds the fallback rates per category. A zero-valued entry means
// no default is configured for that category.
type Defaults struct {
	Domestic decimal.Decimal
	Foreign  decimal.Decimal
	Reseller decimal.Decimal
}

func (d Defaults) forCategory(category clients.Category) (decimal.Decimal, bool) {
	switch category {
	case clients.CategoryDomestic:
		return d.Domestic, !d.Domestic.IsZero()
	case clients.CategoryForeign:
		return d.Foreign, !d.Foreign.IsZero()
	case clients.CategoryReseller:
		return d.Reseller, !d.Reseller.IsZero()
	}
	return decimal.Decimal{}, false
}

// Resolver looks up rates. It never defaults to zero: an unknown client or an
// unconfigured category is an error the caller must handle.
type Resolver struct {
	src      ClientSource
	defaults Defaults
}

// NewResolver constructs a resolver over the given client source.
func NewResolver(src ClientSource, defaults Defaults) *Resolver {
	return &Resolver{src: src, defaults: defaults}
}

// Rate returns the charge-per-participant rate for the client and category.
func (r *Resolver) Rate(ctx context.Context, clientID int64, category clients.Category) (decimal.Decimal, error) {
	client, err := r.src.GetClient(ctx, clientID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("rates: client %d: %w", clientID, err)
	}
	return r.RateFor(client, category)
}

// RateFor resolves against an already loaded client record.
func (r *Resolver) RateFor(client *clients.Client, category clients.Category) (decimal.Decimal, error) {
	if !category.Valid() {
		return decimal.Decimal{}, fmt.Errorf("rates: category %q: %w", category, shared.ErrRateResolution)
	}
	if rate, ok := client.RateOverride(category); ok {
		return rate, nil
	}
	if rate, ok := r.defaults.forCategory(category); ok {
		return rate, nil
	}
	return decimal.Decimal{}, fmt.Errorf("rates: no rate for client %d category %q: %w", client.ID, category, shared.ErrRateResolution)
}

// ResaleRate resolves the per-participant rate a co-host charges across its
// sub-clients, falling back to the reseller default when unset.
func (r *Resolver) ResaleRate(cohost *clients.Client) (decimal.Decimal, error) {
	if cohost.ResaleRate.Valid {
		return cohost.ResaleRate.Decimal, nil
	}
	if rate, ok := r.defaults.forCategory(clients.CategoryReseller); ok {
		return rate, nil
	}
	return decimal.Decimal{}, fmt.Errorf("rates: no resale rate for co-host %d: %w", cohost.ID, shared.ErrRateResolution)
}
