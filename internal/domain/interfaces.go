package domain

import "github.com/shopspring/decimal"

// Authorizer is the boundary to the external access-control layer.
// The vault calls it before every unit of work.
type Authorizer interface {
	IsAuthorized(caller Account, op Operation) bool
}

// PriceConverter converts an asset amount into the vault's unit of account.
// Balance-reporting adapters use it to value their positions.
type PriceConverter interface {
	Convert(asset AssetID, amount decimal.Decimal) (decimal.Decimal, error)
}

// SupplySink receives committed supply changes (the governance/voting extension).
// It is a downstream sink and never influences vault behaviour.
type SupplySink interface {
	OnSupplyChange(change SupplyChange)
}

// AuthorizerFunc adapts a function to the Authorizer interface
type AuthorizerFunc func(caller Account, op Operation) bool

// IsAuthorized calls f(caller, op)
func (f AuthorizerFunc) IsAuthorized(caller Account, op Operation) bool {
	return f(caller, op)
}
