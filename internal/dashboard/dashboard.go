// Package dashboard wires the gateway, feeds, news source, metrics and server
// from configuration.
package dashboard

import (
	"context"
	"strings"
	"time"

	"cryptodash/config"
	"cryptodash/internal/assistant"
	"cryptodash/internal/market"
	"cryptodash/internal/market/derived"
	"cryptodash/internal/market/feed"
	"cryptodash/internal/market/gateway"
	"cryptodash/internal/market/news"
	"cryptodash/internal/metrics"
	"cryptodash/internal/server"
	"cryptodash/pkg/coingecko"

	"go.uber.org/zap"
)

// statusInterval is how often feed state is summarized in the log.
const statusInterval = time.Minute

type Dashboard struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	Listing *feed.Feed[[]market.AssetQuote]
	Global  *feed.Feed[*market.GlobalSnapshot]
	News    *feed.Feed[[]market.NewsItem] // nil when news is disabled
	Server  *server.Server

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewGateway builds the CoinGecko client and gateway described by cfg.
func NewGateway(cfg *config.Config, logger *zap.Logger) (*gateway.Gateway, error) {
	client := coingecko.NewRESTClient(cfg.CoinGecko.BaseURL, cfg.CoinGecko.Timeout)
	if cfg.CoinGecko.APIKey != "" {
		client.SetAPIKey(coingecko.APIKeyHeader(cfg.CoinGecko.Pro), cfg.CoinGecko.APIKey)
	}
	return gateway.New(client, gateway.Options{
		VsCurrency: cfg.Market.VsCurrency,
		Order:      coingecko.MarketOrder(cfg.Market.Order),
	}, logger.Named("gateway"))
}

// Params returns the derived-metrics parameters described by cfg.
func Params(cfg *config.Config) (derived.Params, error) {
	rate, err := cfg.Market.Rate()
	if err != nil {
		return derived.Params{}, err
	}
	stable := make([]string, 0, len(cfg.Market.Stablecoins))
	for _, s := range cfg.Market.Stablecoins {
		stable = append(stable, strings.ToLower(strings.TrimSpace(s)))
	}
	p := derived.Params{
		SourceCurrency:  cfg.Market.VsCurrency,
		DisplayCurrency: cfg.Market.DisplayCurrency,
		ConversionRate:  rate,
		Stablecoins:     stable,
	}
	return p, p.Validate()
}

// New builds every component. Any error is a configuration error.
func New(cfg *config.Config, logger *zap.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()

	gw, err := NewGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	params, err := Params(cfg)
	if err != nil {
		return nil, err
	}

	fetchListing, err := gw.ListingFetcher(cfg.Market.ListingLimit)
	if err != nil {
		return nil, err
	}
	listing, err := feed.New(feed.Config{
		Name:     "listing",
		Interval: cfg.Refresh.ListingInterval,
		Timeout:  cfg.CoinGecko.Timeout,
	}, fetchListing, logger, feed.WithRecorder(m))
	if err != nil {
		return nil, err
	}

	global, err := feed.New(feed.Config{
		Name:     "global",
		Interval: cfg.Refresh.GlobalInterval,
		Timeout:  cfg.CoinGecko.Timeout,
	}, gw.FetchGlobal, logger, feed.WithRecorder(m))
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		Listing: listing,
		Global:  global,
	}

	var newsSrc server.Source[[]market.NewsItem]
	if cfg.News.Enabled {
		feeds := make([]news.FeedURL, 0, len(cfg.News.Sources))
		for _, s := range cfg.News.Sources {
			feeds = append(feeds, news.FeedURL{Name: s.Name, URL: s.URL})
		}
		src, err := news.NewSource(feeds, cfg.News.Limit, cfg.News.Timeout, logger.Named("news"))
		if err != nil {
			return nil, err
		}
		d.News, err = feed.New(feed.Config{
			Name:     "news",
			Interval: cfg.Refresh.NewsInterval,
			Timeout:  cfg.News.Timeout,
		}, src.Fetch, logger, feed.WithRecorder(m))
		if err != nil {
			return nil, err
		}
		newsSrc = d.News
	}

	d.Server, err = server.New(server.Options{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		SessionTTL:  cfg.Server.SessionTTL,
		Params:      params,
		Responder:   assistant.NewDefaultResponder(),
		Metrics:     m,
		Logger:      logger.Named("server"),
	}, listing, global, newsSrc)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Start begins refreshing all feeds.
func (d *Dashboard) Start() {
	d.Listing.Start()
	d.Global.Start()
	if d.News != nil {
		d.News.Start()
	}

	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.logStatus(d.stopCh, d.doneCh)
}

// Stop cancels every feed timer. In-flight fetches finish in the background
// and are discarded.
func (d *Dashboard) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
	d.stopCh = nil

	d.Listing.Stop()
	d.Global.Stop()
	if d.News != nil {
		d.News.Stop()
	}
}

// Run starts the feeds, serves HTTP until ctx is cancelled and then stops.
func (d *Dashboard) Run(ctx context.Context) error {
	d.Start()
	defer d.Stop()
	return d.Server.ListenAndServe(ctx)
}

// Periodically log feed state for visibility
func (d *Dashboard) logStatus(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l, g := d.Listing.Latest(), d.Global.Latest()
			fields := []zap.Field{
				zap.Int("coins", len(l.Value)),
				zap.Bool("listing_failed", l.Failed()),
				zap.Bool("global_loaded", g.HasValue),
				zap.Bool("global_failed", g.Failed()),
			}
			if d.News != nil {
				n := d.News.Latest()
				fields = append(fields, zap.Int("news", len(n.Value)), zap.Bool("news_failed", n.Failed()))
			}
			d.logger.Info("feed status", fields...)
		}
	}
}
