package coingecko

import "github.com/shopspring/decimal"

// MarketCoin is one row of GET /coins/markets.
// Only the fields the dashboard reads are declared; the rest are ignored.
type MarketCoin struct {
	ID                       string          `json:"id"`                          // e.g., "bitcoin"
	Symbol                   string          `json:"symbol"`                      // e.g., "btc"
	Name                     string          `json:"name"`                        // e.g., "Bitcoin"
	Image                    string          `json:"image"`                       // large image URL
	CurrentPrice             decimal.Decimal `json:"current_price"`               // null decodes to zero
	MarketCap                decimal.Decimal `json:"market_cap"`                  // null decodes to zero
	MarketCapRank            *int            `json:"market_cap_rank"`             // null for unranked coins
	PriceChangePercentage24h *float64        `json:"price_change_percentage_24h"` // null when unknown
	TotalVolume              decimal.Decimal `json:"total_volume"`
	LastUpdated              string          `json:"last_updated"` // RFC3339
}

// GlobalResponse is the envelope of GET /global.
type GlobalResponse struct {
	Data *GlobalData `json:"data"`
}

// GlobalData holds the aggregate market figures.
type GlobalData struct {
	ActiveCryptocurrencies          int                        `json:"active_cryptocurrencies"`
	Markets                         int                        `json:"markets"`
	TotalMarketCap                  map[string]decimal.Decimal `json:"total_market_cap"`      // currency -> total
	TotalVolume                     map[string]decimal.Decimal `json:"total_volume"`          // currency -> 24h volume
	MarketCapPercentage             map[string]float64         `json:"market_cap_percentage"` // ticker -> percent
	MarketCapChangePercentage24hUSD *float64                   `json:"market_cap_change_percentage_24h_usd"`
	UpdatedAt                       int64                      `json:"updated_at"` // unix seconds
}

// ErrorResponse is the body CoinGecko sends with non-2xx statuses.
type ErrorResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}
