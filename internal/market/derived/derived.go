// Package derived turns a raw global market snapshot into dashboard aggregates.
// Everything here is pure: no I/O, no clock, no locale.
package derived

import (
	"strings"

	"cryptodash/internal/market"

	"github.com/shopspring/decimal"
)

// DefaultUSDToEUR is a fixed approximation of the USD->EUR rate, not a live
// quote. Override it through Params.ConversionRate (config key
// market.conversion_rate) when a better figure is known.
var DefaultUSDToEUR = decimal.RequireFromString("0.93")

// DefaultStablecoins are the tickers grouped as "stablecoins".
var DefaultStablecoins = []string{"usdt", "usdc"}

// Category names one slice of the dominance breakdown.
type Category string

const (
	CategoryBitcoin    Category = "bitcoin"
	CategoryEthereum   Category = "ethereum"
	CategoryStablecoin Category = "stablecoins"
	CategoryOther      Category = "other"
)

// Params configures the calculation. The zero value is not valid; use DefaultParams.
type Params struct {
	SourceCurrency  string          // currency the upstream totals are read in, e.g. "usd"
	DisplayCurrency string          // currency of the converted totals, e.g. "eur"
	ConversionRate  decimal.Decimal // SourceCurrency -> DisplayCurrency, ignored when they match
	Stablecoins     []string        // tickers summed into the stablecoin category
}

// DefaultParams converts USD totals to EUR at DefaultUSDToEUR.
func DefaultParams() Params {
	return Params{
		SourceCurrency:  "usd",
		DisplayCurrency: "eur",
		ConversionRate:  DefaultUSDToEUR,
		Stablecoins:     append([]string(nil), DefaultStablecoins...),
	}
}

// Validate reports configuration mistakes as *market.ConfigError.
func (p Params) Validate() error {
	if strings.TrimSpace(p.SourceCurrency) == "" {
		return market.NewConfigError("source_currency", "must not be empty")
	}
	if strings.TrimSpace(p.DisplayCurrency) == "" {
		return market.NewConfigError("display_currency", "must not be empty")
	}
	if !p.sameCurrency() && !p.ConversionRate.IsPositive() {
		return market.NewConfigError("conversion_rate", "must be positive, got %s", p.ConversionRate)
	}
	return nil
}

func (p Params) sameCurrency() bool {
	return strings.EqualFold(p.SourceCurrency, p.DisplayCurrency)
}

// rate is the factor applied to source totals.
func (p Params) rate() decimal.Decimal {
	if p.sameCurrency() {
		return decimal.NewFromInt(1)
	}
	return p.ConversionRate
}

// CategoryShare is one bar of the market distribution.
type CategoryShare struct {
	Category  Category        `json:"category"`
	Dominance float64         `json:"dominance"`
	MarketCap decimal.Decimal `json:"market_cap"` // display currency
}

// Metrics is the presentation-ready view of one GlobalSnapshot.
type Metrics struct {
	Bitcoin    float64 `json:"bitcoin_dominance"`
	Ethereum   float64 `json:"ethereum_dominance"`
	Stablecoin float64 `json:"stablecoin_dominance"`
	Other      float64 `json:"other_dominance"`

	Currency           string               `json:"currency"`
	ConversionRate     decimal.Decimal      `json:"conversion_rate"`
	TotalMarketCap     decimal.Decimal      `json:"total_market_cap"`
	TotalVolume        decimal.Decimal      `json:"total_volume"`
	MarketCapChange24h market.OptionalFloat `json:"market_cap_change_24h"`

	Distribution []CategoryShare `json:"distribution"`
}

// Compute derives dominance, converted totals and the category distribution.
// Callers never pass an absent snapshot; they render a loading state instead.
func Compute(s market.GlobalSnapshot, p Params) Metrics {
	btc := s.Dominance("btc").OrZero()
	eth := s.Dominance("eth").OrZero()

	var stable float64
	for _, ticker := range p.Stablecoins {
		stable += s.Dominance(ticker).OrZero()
	}

	// Upstream rounding can push the named categories past 100.
	other := 100 - btc - eth - stable
	if other < 0 {
		other = 0
	}

	rate := p.rate()
	source := strings.ToLower(p.SourceCurrency)
	mcap, _ := s.MarketCapIn(source)
	vol, _ := s.VolumeIn(source)
	totalCap := mcap.Mul(rate)

	m := Metrics{
		Bitcoin:            btc,
		Ethereum:           eth,
		Stablecoin:         stable,
		Other:              other,
		Currency:           strings.ToLower(p.DisplayCurrency),
		ConversionRate:     rate,
		TotalMarketCap:     totalCap,
		TotalVolume:        vol.Mul(rate),
		MarketCapChange24h: s.MarketCapChange24h,
	}

	for _, c := range []struct {
		cat Category
		pct float64
	}{
		{CategoryBitcoin, btc},
		{CategoryEthereum, eth},
		{CategoryStablecoin, stable},
		{CategoryOther, other},
	} {
		m.Distribution = append(m.Distribution, CategoryShare{
			Category:  c.cat,
			Dominance: c.pct,
			MarketCap: share(totalCap, c.pct),
		})
	}
	return m
}

// share returns pct percent of total.
func share(total decimal.Decimal, pct float64) decimal.Decimal {
	return total.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
}
