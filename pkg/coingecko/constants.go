package coingecko

import "fmt"

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// MaxPerPage is the largest page size /coins/markets accepts.
	MaxPerPage = 250

	// HeaderDemoAPIKey and HeaderProAPIKey carry the optional API key.
	HeaderDemoAPIKey = "x-cg-demo-api-key"
	HeaderProAPIKey  = "x-cg-pro-api-key"
)

// MarketOrder is the sort order for /coins/markets.
type MarketOrder string

const (
	OrderMarketCapDesc MarketOrder = "market_cap_desc"
	OrderMarketCapAsc  MarketOrder = "market_cap_asc"
	OrderVolumeDesc    MarketOrder = "volume_desc"
	OrderVolumeAsc     MarketOrder = "volume_asc"
	OrderIDAsc         MarketOrder = "id_asc"
	OrderIDDesc        MarketOrder = "id_desc"
)

var validOrders = map[MarketOrder]bool{
	OrderMarketCapDesc: true,
	OrderMarketCapAsc:  true,
	OrderVolumeDesc:    true,
	OrderVolumeAsc:     true,
	OrderIDAsc:         true,
	OrderIDDesc:        true,
}

// IsValid checks if the order is one the API understands.
func (o MarketOrder) IsValid() bool {
	return validOrders[o]
}

// ParseMarketOrder parses a config string into a MarketOrder.
func ParseMarketOrder(s string) (MarketOrder, error) {
	o := MarketOrder(s)
	if !o.IsValid() {
		return "", fmt.Errorf("invalid market order: %s", s)
	}
	return o, nil
}

// APIKeyHeader returns the header name for a demo or pro key.
func APIKeyHeader(pro bool) string {
	if pro {
		return HeaderProAPIKey
	}
	return HeaderDemoAPIKey
}
