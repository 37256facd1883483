package gateway

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cryptodash/internal/market"
	"cryptodash/pkg/coingecko"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Upstream is the subset of the CoinGecko client the gateway calls.
type Upstream interface {
	GetCoinMarkets(ctx context.Context, p coingecko.MarketsParams) ([]coingecko.MarketCoin, error)
	GetGlobal(ctx context.Context) (*coingecko.GlobalData, error)
}

type Options struct {
	VsCurrency string                // listing currency, e.g. "usd"
	Order      coingecko.MarketOrder // listing sort order
}

// Gateway turns upstream responses into market snapshots. Upstream failures
// come back as a nil result plus a *market.FetchError; invalid arguments as a
// *market.ConfigError. It never retries.
type Gateway struct {
	client Upstream
	opts   Options
	logger *zap.Logger
}

func New(client Upstream, opts Options, logger *zap.Logger) (*Gateway, error) {
	if client == nil {
		return nil, market.NewConfigError("gateway client", "must not be nil")
	}
	opts.VsCurrency = strings.ToLower(strings.TrimSpace(opts.VsCurrency))
	if opts.VsCurrency == "" {
		return nil, market.NewConfigError("vs_currency", "must not be empty")
	}
	if opts.Order == "" {
		opts.Order = coingecko.OrderMarketCapDesc
	}
	if !opts.Order.IsValid() {
		return nil, market.NewConfigError("order", "unsupported value %q", opts.Order)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{client: client, opts: opts, logger: logger}, nil
}

// ValidateLimit checks a listing page size without touching the network.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return market.NewConfigError("limit", "must be positive, got %d", limit)
	}
	if limit > coingecko.MaxPerPage {
		return market.NewConfigError("limit", "must be at most %d, got %d", coingecko.MaxPerPage, limit)
	}
	return nil
}

// FetchListing returns the top limit assets ordered by strictly increasing rank.
func (g *Gateway) FetchListing(ctx context.Context, limit int) ([]market.AssetQuote, error) {
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}

	coins, err := g.client.GetCoinMarkets(ctx, coingecko.MarketsParams{
		VsCurrency: g.opts.VsCurrency,
		Order:      g.opts.Order,
		PerPage:    limit,
		Page:       1,
	})
	if err != nil {
		return nil, g.fail("fetch listing", err)
	}

	quotes := normalizeListing(coins, limit)
	g.logger.Debug("fetched listing", zap.Int("requested", limit), zap.Int("received", len(coins)), zap.Int("kept", len(quotes)))
	return quotes, nil
}

// ListingFetcher validates limit once and returns a fetch function for a feed.
func (g *Gateway) ListingFetcher(limit int) (func(context.Context) ([]market.AssetQuote, error), error) {
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	return func(ctx context.Context) ([]market.AssetQuote, error) {
		return g.FetchListing(ctx, limit)
	}, nil
}

// FetchGlobal returns the global aggregate snapshot.
func (g *Gateway) FetchGlobal(ctx context.Context) (*market.GlobalSnapshot, error) {
	data, err := g.client.GetGlobal(ctx)
	if err != nil {
		return nil, g.fail("fetch global", err)
	}
	if data.MarketCapPercentage == nil && data.TotalMarketCap == nil {
		return nil, g.fail("fetch global", errors.New("payload has no market data"))
	}
	return toSnapshot(data), nil
}

func (g *Gateway) fail(op string, err error) error {
	g.logger.Warn("upstream fetch failed", zap.String("op", op), zap.Error(err))
	return &market.FetchError{Op: op, Err: err}
}

func normalizeListing(coins []coingecko.MarketCoin, limit int) []market.AssetQuote {
	quotes := make([]market.AssetQuote, 0, len(coins))
	for _, c := range coins {
		if c.MarketCapRank == nil || *c.MarketCapRank <= 0 {
			continue // unranked coins cannot be ordered
		}
		q := market.AssetQuote{
			ID:            c.ID,
			Name:          c.Name,
			Symbol:        c.Symbol,
			CurrentPrice:  c.CurrentPrice,
			MarketCap:     c.MarketCap,
			MarketCapRank: *c.MarketCapRank,
			Image:         c.Image,
		}
		if c.PriceChangePercentage24h != nil {
			q.PriceChangePercentage24h = market.Some(*c.PriceChangePercentage24h)
		}
		quotes = append(quotes, q)
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].MarketCapRank < quotes[j].MarketCapRank
	})

	out := quotes[:0]
	for _, q := range quotes {
		if len(out) > 0 && out[len(out)-1].MarketCapRank == q.MarketCapRank {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

func toSnapshot(d *coingecko.GlobalData) *market.GlobalSnapshot {
	s := &market.GlobalSnapshot{
		TotalMarketCap:         lowerDecimalKeys(d.TotalMarketCap),
		TotalVolume:            lowerDecimalKeys(d.TotalVolume),
		MarketCapPercentage:    make(map[string]float64, len(d.MarketCapPercentage)),
		ActiveCryptocurrencies: d.ActiveCryptocurrencies,
		Markets:                d.Markets,
	}
	for k, v := range d.MarketCapPercentage {
		s.MarketCapPercentage[strings.ToLower(k)] = v
	}
	if d.MarketCapChangePercentage24hUSD != nil {
		s.MarketCapChange24h = market.Some(*d.MarketCapChangePercentage24hUSD)
	}
	if d.UpdatedAt > 0 {
		s.UpdatedAt = time.Unix(d.UpdatedAt, 0).UTC()
	}
	return s
}

func lowerDecimalKeys(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
