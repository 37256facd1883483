package server

import (
	"strings"
	"time"

	"cryptodash/internal/format"
	"cryptodash/internal/market"
	"cryptodash/internal/market/derived"
	"cryptodash/internal/market/feed"

	"github.com/shopspring/decimal"
)

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Freshness tells clients whether the data is current.
type Freshness struct {
	UpdatedAt time.Time `json:"updated_at"`
	Stale     bool      `json:"stale"`           // last refresh failed, data is from an earlier one
	Error     string    `json:"error,omitempty"` // reason of the last failure
}

type CoinView struct {
	Rank               int                  `json:"rank"`
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Symbol             string               `json:"symbol"`
	Image              string               `json:"image"`
	Price              decimal.Decimal      `json:"price"`
	PriceFormatted     string               `json:"price_formatted"`
	Change24h          market.OptionalFloat `json:"change_24h"`
	Change24hFormatted string               `json:"change_24h_formatted"`
	MarketCap          decimal.Decimal      `json:"market_cap"`
	MarketCapFormatted string               `json:"market_cap_formatted"`
}

type CoinsView struct {
	Freshness
	Currency string     `json:"currency"`
	Coins    []CoinView `json:"coins"`
}

type DistributionView struct {
	Category  derived.Category `json:"category"`
	Dominance float64          `json:"dominance"`
	MarketCap decimal.Decimal  `json:"market_cap"`
	Label     string           `json:"label"`
}

type MarketFormatted struct {
	TotalMarketCap      string `json:"total_market_cap"`
	TotalVolume         string `json:"total_volume"`
	BitcoinDominance    string `json:"bitcoin_dominance"`
	EthereumDominance   string `json:"ethereum_dominance"`
	StablecoinDominance string `json:"stablecoin_dominance"`
	OtherDominance      string `json:"other_dominance"`
	MarketCapChange24h  string `json:"market_cap_change_24h"`
}

type MarketView struct {
	Freshness
	Metrics                derived.Metrics    `json:"metrics"`
	Formatted              MarketFormatted    `json:"formatted"`
	Distribution           []DistributionView `json:"distribution"`
	ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
	Markets                int                `json:"markets"`
}

type NewsItemView struct {
	market.NewsItem
	Date string `json:"date"`
}

type NewsView struct {
	Freshness
	Items []NewsItemView `json:"items"`
}

func freshness[T any](st feed.State[T]) Freshness {
	f := Freshness{UpdatedAt: st.UpdatedAt, Stale: st.Failed()}
	if st.Err != nil {
		f.Error = st.Err.Error()
	}
	return f
}

func (s *Server) coinsView(st feed.State[[]market.AssetQuote]) any {
	cur := s.opts.Params.SourceCurrency
	v := CoinsView{
		Freshness: freshness(st),
		Currency:  strings.ToLower(cur),
		Coins:     make([]CoinView, 0, len(st.Value)),
	}
	for _, q := range st.Value {
		v.Coins = append(v.Coins, CoinView{
			Rank:               q.MarketCapRank,
			ID:                 q.ID,
			Name:               q.Name,
			Symbol:             strings.ToUpper(q.Symbol),
			Image:              q.Image,
			Price:              q.CurrentPrice,
			PriceFormatted:     s.formatter.Currency(q.CurrentPrice, cur),
			Change24h:          q.PriceChangePercentage24h,
			Change24hFormatted: s.formatter.Change(q.PriceChangePercentage24h),
			MarketCap:          q.MarketCap,
			MarketCapFormatted: s.formatter.Compact(q.MarketCap, cur),
		})
	}
	return v
}

func (s *Server) marketView(st feed.State[*market.GlobalSnapshot]) any {
	snap := st.Value
	m := derived.Compute(*snap, s.opts.Params)
	f := s.formatter

	v := MarketView{
		Freshness: freshness(st),
		Metrics:   m,
		Formatted: MarketFormatted{
			TotalMarketCap:      f.Compact(m.TotalMarketCap, m.Currency),
			TotalVolume:         f.Compact(m.TotalVolume, m.Currency),
			BitcoinDominance:    f.Percent(m.Bitcoin, 1),
			EthereumDominance:   f.Percent(m.Ethereum, 1),
			StablecoinDominance: f.Percent(m.Stablecoin, 1),
			OtherDominance:      f.Percent(m.Other, 1),
			MarketCapChange24h:  f.Change(m.MarketCapChange24h),
		},
		ActiveCryptocurrencies: snap.ActiveCryptocurrencies,
		Markets:                snap.Markets,
	}
	for _, d := range m.Distribution {
		v.Distribution = append(v.Distribution, DistributionView{
			Category:  d.Category,
			Dominance: d.Dominance,
			MarketCap: d.MarketCap,
			Label:     f.Billions(d.MarketCap, m.Currency),
		})
	}
	return v
}

func (s *Server) newsView(st feed.State[[]market.NewsItem]) any {
	v := NewsView{Freshness: freshness(st), Items: make([]NewsItemView, 0, len(st.Value))}
	for _, it := range st.Value {
		v.Items = append(v.Items, NewsItemView{NewsItem: it, Date: format.Date(it.PublishedAt)})
	}
	return v
}
