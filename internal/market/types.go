package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetQuote is one tradable asset as returned by the listing endpoint.
// Quotes are replaced wholesale on every refresh, never patched.
type AssetQuote struct {
	ID                       string          `json:"id"`                          // e.g., "bitcoin"
	Name                     string          `json:"name"`                        // e.g., "Bitcoin"
	Symbol                   string          `json:"symbol"`                      // e.g., "btc"
	CurrentPrice             decimal.Decimal `json:"current_price"`               // in the listing currency
	PriceChangePercentage24h OptionalFloat   `json:"price_change_percentage_24h"` // signed, may be absent upstream
	MarketCap                decimal.Decimal `json:"market_cap"`                  // in the listing currency
	MarketCapRank            int             `json:"market_cap_rank"`             // 1-based
	Image                    string          `json:"image"`                       // image URL
}

// GlobalSnapshot is the aggregate market state at one instant.
// Map keys are lower-case currency codes ("usd") and tickers ("btc").
type GlobalSnapshot struct {
	TotalMarketCap         map[string]decimal.Decimal `json:"total_market_cap"`
	TotalVolume            map[string]decimal.Decimal `json:"total_volume"`
	MarketCapPercentage    map[string]float64         `json:"market_cap_percentage"`
	MarketCapChange24h     OptionalFloat              `json:"market_cap_change_percentage_24h_usd"`
	ActiveCryptocurrencies int                        `json:"active_cryptocurrencies"`
	Markets                int                        `json:"markets"`
	UpdatedAt              time.Time                  `json:"updated_at"`
}

// Dominance returns the market-cap percentage of ticker. Tickers the upstream
// did not list come back as None; callers aggregate through OrZero.
func (s GlobalSnapshot) Dominance(ticker string) OptionalFloat {
	v, ok := s.MarketCapPercentage[strings.ToLower(ticker)]
	if !ok {
		return None()
	}
	return Some(v)
}

// MarketCapIn returns the total market capitalization in currency.
func (s GlobalSnapshot) MarketCapIn(currency string) (decimal.Decimal, bool) {
	v, ok := s.TotalMarketCap[strings.ToLower(currency)]
	return v, ok
}

// VolumeIn returns the total 24h trading volume in currency.
func (s GlobalSnapshot) VolumeIn(currency string) (decimal.Decimal, bool) {
	v, ok := s.TotalVolume[strings.ToLower(currency)]
	return v, ok
}

// NewsItem is a single headline from a configured news feed.
type NewsItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}
