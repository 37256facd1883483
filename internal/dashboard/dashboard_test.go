package dashboard

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cryptodash/config"
	"cryptodash/internal/market"
)

const marketsPayload = `[
  {"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":64000,"market_cap":1260000000000,"market_cap_rank":1,"price_change_percentage_24h":1.2},
  {"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3100,"market_cap":372000000000,"market_cap_rank":2}
]`

const globalPayload = `{"data":{"total_market_cap":{"usd":2400000000000},"total_volume":{"usd":100000000000},
  "market_cap_percentage":{"btc":52,"eth":17,"usdt":6,"usdc":2},"market_cap_change_percentage_24h_usd":-0.5}}`

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		CoinGecko: config.CoinGeckoConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		Market: config.MarketConfig{
			VsCurrency:      "usd",
			DisplayCurrency: "eur",
			ConversionRate:  "0.93",
			ListingLimit:    10,
			Order:           "market_cap_desc",
			Stablecoins:     []string{"USDT", "usdc"},
		},
		Refresh: config.RefreshConfig{
			ListingInterval: time.Hour,
			GlobalInterval:  time.Hour,
			NewsInterval:    time.Hour,
		},
		Server: config.ServerConfig{Addr: ":0", SessionTTL: time.Minute},
		Log:    config.LogConfig{Level: "info"},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// go test -v --run TestDashboardEndToEnd
func TestDashboardEndToEnd(t *testing.T) {
	var apiKey atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey.Store(r.Header.Get("x-cg-demo-api-key"))
		switch r.URL.Path {
		case "/coins/markets":
			w.Write([]byte(marketsPayload))
		case "/global":
			w.Write([]byte(globalPayload))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.CoinGecko.APIKey = "demo"

	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.News != nil {
		t.Fatal("news feed built although disabled")
	}

	d.Start()
	defer d.Stop()

	waitFor(t, "listing", func() bool { return d.Listing.Latest().HasValue })
	waitFor(t, "global", func() bool { return d.Global.Latest().HasValue })

	if got := len(d.Listing.Latest().Value); got != 2 {
		t.Errorf("coins: got %d", got)
	}
	if got := d.Global.Latest().Value.Dominance("btc").OrZero(); got != 52 {
		t.Errorf("btc dominance: got %v", got)
	}
	if apiKey.Load() != "demo" {
		t.Errorf("api key header not sent: %v", apiKey.Load())
	}

	for _, path := range []string{"/api/v1/coins", "/api/v1/market", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		d.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestDashboardUpstreamDownKeepsLoadingState(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	d, err := New(testConfig(upstream.URL), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()
	defer d.Stop()

	waitFor(t, "failed attempt", func() bool { return d.Global.Latest().Failed() })
	if d.Global.Latest().HasValue {
		t.Fatal("value published from failed fetch")
	}

	rec := httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/market", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected loading state, got %d", rec.Code)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Market.ListingLimit = 0
	if _, err := New(cfg, nil); !errors.Is(err, market.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg = testConfig("http://127.0.0.1:1")
	cfg.Market.ConversionRate = "0"
	if _, err := New(cfg, nil); !errors.Is(err, market.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParamsLowercasesStablecoins(t *testing.T) {
	p, err := Params(testConfig("http://x"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Stablecoins[0] != "usdt" || p.ConversionRate.String() != "0.93" {
		t.Fatalf("unexpected params: %+v", p)
	}
}
