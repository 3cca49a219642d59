// Package pricing provides a rate-table implementation of the price converter
// boundary. Rates are quoted in the vault's unit of account.
package pricing

import (
	"fmt"
	"sync"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StaticConverter converts with a fixed, settable rate per asset.
// The base asset always converts 1:1.
type StaticConverter struct {
	mu    sync.RWMutex
	base  domain.AssetID
	rates map[domain.AssetID]decimal.Decimal
	log   zerolog.Logger
}

// NewStaticConverter creates a converter whose unit of account is base
func NewStaticConverter(base domain.AssetID, log zerolog.Logger) *StaticConverter {
	return &StaticConverter{
		base:  base,
		rates: make(map[domain.AssetID]decimal.Decimal),
		log:   log.With().Str("service", "pricing").Logger(),
	}
}

// SetRate sets the unit-of-account value of one unit of asset
func (c *StaticConverter) SetRate(asset domain.AssetID, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("negative rate %s for %s: %w", rate, asset, domain.ErrInvalidConfig)
	}
	if asset == c.base {
		return fmt.Errorf("rate of the base asset is fixed: %w", domain.ErrInvalidConfig)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[asset] = rate
	c.log.Debug().Str("asset", string(asset)).Str("rate", rate.String()).Msg("Rate updated")
	return nil
}

// Convert implements domain.PriceConverter. Results round down.
func (c *StaticConverter) Convert(asset domain.AssetID, amount decimal.Decimal) (decimal.Decimal, error) {
	if asset == c.base {
		return amount, nil
	}

	c.mu.RLock()
	rate, ok := c.rates[asset]
	c.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("asset %s: %w", asset, domain.ErrNoPrice)
	}
	return formulas.MulDiv(amount, rate, decimal.NewFromInt(1), formulas.Down)
}
