package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cryptodash/internal/assistant"
	"cryptodash/internal/market"
	"cryptodash/internal/market/derived"
	"cryptodash/internal/market/feed"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type stubSource[T any] struct {
	mu   sync.Mutex
	st   feed.State[T]
	subs []chan feed.State[T]
}

func (s *stubSource[T]) Latest() feed.State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *stubSource[T]) Subscribe() (<-chan feed.State[T], func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan feed.State[T], 1)
	s.subs = append(s.subs, ch)
	return ch, func() {}
}

func (s *stubSource[T]) push(st feed.State[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

func ready[T any](v T) feed.State[T] {
	return feed.State[T]{Value: v, HasValue: true, Seq: 1, Attempt: 1, UpdatedAt: time.Now()}
}

func quotes() []market.AssetQuote {
	return []market.AssetQuote{
		{ID: "bitcoin", Name: "Bitcoin", Symbol: "btc", MarketCapRank: 1,
			CurrentPrice: decimal.RequireFromString("64123.45"), MarketCap: decimal.NewFromInt(1_262_000_000_000),
			PriceChangePercentage24h: market.Some(-1.25)},
		{ID: "ethereum", Name: "Ethereum", Symbol: "eth", MarketCapRank: 2,
			CurrentPrice: decimal.RequireFromString("3100.5"), MarketCap: decimal.NewFromInt(372_000_000_000)},
	}
}

func globalSnapshot() *market.GlobalSnapshot {
	return &market.GlobalSnapshot{
		TotalMarketCap:      map[string]decimal.Decimal{"usd": decimal.NewFromInt(2_400_000_000_000)},
		TotalVolume:         map[string]decimal.Decimal{"usd": decimal.NewFromInt(100_000_000_000)},
		MarketCapPercentage: map[string]float64{"btc": 52, "eth": 17, "usdt": 6, "usdc": 2},
		MarketCapChange24h:  market.Some(1.5),
	}
}

type fixture struct {
	srv     *Server
	listing *stubSource[[]market.AssetQuote]
	global  *stubSource[*market.GlobalSnapshot]
}

func newFixture(t *testing.T, news Source[[]market.NewsItem]) *fixture {
	t.Helper()
	f := &fixture{
		listing: &stubSource[[]market.AssetQuote]{},
		global:  &stubSource[*market.GlobalSnapshot]{},
	}
	srv, err := New(Options{SessionTTL: time.Minute, Params: derived.DefaultParams()}, f.listing, f.global, news)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.srv = srv
	return f
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

// decodeData re-decodes the envelope payload into v.
func decodeData(t *testing.T, data any, v any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	l := &stubSource[[]market.AssetQuote]{}
	g := &stubSource[*market.GlobalSnapshot]{}

	if _, err := New(Options{SessionTTL: time.Minute, Params: derived.DefaultParams()}, nil, g, nil); !errors.Is(err, market.ErrConfiguration) {
		t.Errorf("nil listing: got %v", err)
	}
	if _, err := New(Options{Params: derived.DefaultParams()}, l, g, nil); !errors.Is(err, market.ErrConfiguration) {
		t.Errorf("zero ttl: got %v", err)
	}
	if _, err := New(Options{SessionTTL: time.Minute}, l, g, nil); !errors.Is(err, market.ErrConfiguration) {
		t.Errorf("zero params: got %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec, resp := do(t, f.srv.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("health: %d %+v", rec.Code, resp)
	}
}

// go test -v --run TestMarketLoadingState
func TestMarketLoadingState(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/api/v1/market", "/api/v1/coins"} {
		rec, resp := do(t, f.srv.Handler(), http.MethodGet, path, "")
		if rec.Code != http.StatusServiceUnavailable || resp.Success || resp.Error == "" {
			t.Errorf("%s: expected loading state, got %d %+v", path, rec.Code, resp)
		}
	}
}

// go test -v --run TestMarket
func TestMarket(t *testing.T) {
	f := newFixture(t, nil)
	f.global.push(ready(globalSnapshot()))

	rec, resp := do(t, f.srv.Handler(), http.MethodGet, "/api/v1/market", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var view struct {
		Stale   bool `json:"stale"`
		Metrics struct {
			Bitcoin    float64 `json:"bitcoin_dominance"`
			Ethereum   float64 `json:"ethereum_dominance"`
			Stablecoin float64 `json:"stablecoin_dominance"`
			Other      float64 `json:"other_dominance"`
		} `json:"metrics"`
		Formatted    MarketFormatted `json:"formatted"`
		Distribution []struct {
			Category string `json:"category"`
			Label    string `json:"label"`
		} `json:"distribution"`
	}
	decodeData(t, resp.Data, &view)

	m := view.Metrics
	if m.Bitcoin != 52 || m.Ethereum != 17 || m.Stablecoin != 8 || m.Other != 23 {
		t.Errorf("dominance: %+v", m)
	}
	if view.Formatted.TotalMarketCap != "2,23 Bio. €" {
		t.Errorf("total market cap: %q", view.Formatted.TotalMarketCap)
	}
	if view.Formatted.BitcoinDominance != "52,0%" {
		t.Errorf("btc dominance: %q", view.Formatted.BitcoinDominance)
	}
	if len(view.Distribution) != 4 || view.Distribution[0].Label != "1.161 Mrd. €" {
		t.Errorf("distribution: %+v", view.Distribution)
	}
	if view.Stale {
		t.Error("fresh data reported stale")
	}
}

func TestCoinsStaleAfterFailure(t *testing.T) {
	f := newFixture(t, nil)
	st := ready(quotes())
	st.Err = &market.FetchError{Op: "fetch listing", Err: errors.New("429")}
	st.Attempt = 2
	f.listing.push(st)

	rec, resp := do(t, f.srv.Handler(), http.MethodGet, "/api/v1/coins", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var view CoinsView
	decodeData(t, resp.Data, &view)
	if !view.Stale || view.Error == "" {
		t.Errorf("expected stale flag with reason, got %+v", view.Freshness)
	}
	if len(view.Coins) != 2 {
		t.Fatalf("coins: %d", len(view.Coins))
	}
	btc := view.Coins[0]
	if btc.Symbol != "BTC" || btc.PriceFormatted != "64.123,45 $" || btc.Change24hFormatted != "-1,25%" {
		t.Errorf("bitcoin view: %+v", btc)
	}
	if view.Coins[1].Change24hFormatted != "–" {
		t.Errorf("absent change: %q", view.Coins[1].Change24hFormatted)
	}
}

func TestNews(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := do(t, f.srv.Handler(), http.MethodGet, "/api/v1/news", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled news: status %d", rec.Code)
	}

	news := &stubSource[[]market.NewsItem]{}
	f = newFixture(t, news)
	news.push(ready([]market.NewsItem{{Title: "Bitcoin steigt", PublishedAt: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)}}))

	rec, resp := do(t, f.srv.Handler(), http.MethodGet, "/api/v1/news", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view NewsView
	decodeData(t, resp.Data, &view)
	if len(view.Items) != 1 || view.Items[0].Date != "10.06.2024" || view.Items[0].Title != "Bitcoin steigt" {
		t.Errorf("news view: %+v", view.Items)
	}
}

// go test -v --run TestChatSessionLifecycle
func TestChatSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.Handler()

	rec, resp := do(t, h, http.MethodPost, "/api/v1/chat/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	var created sessionView
	decodeData(t, resp.Data, &created)
	if created.ID == "" || len(created.Messages) != 1 || created.Messages[0].Content != assistant.Greeting {
		t.Fatalf("created session: %+v", created)
	}
	base := "/api/v1/chat/sessions/" + created.ID

	rec, resp = do(t, h, http.MethodPost, base+"/messages", `{"content":"Was ist Bitcoin?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("message: status %d %+v", rec.Code, resp)
	}
	var msg messageResponse
	decodeData(t, resp.Data, &msg)
	if cat, want := assistant.NewDefaultResponder().Match("bitcoin"); cat != assistant.CategoryBitcoin || msg.Answer.Content != want {
		t.Errorf("answer: %q", msg.Answer.Content)
	}

	rec, _ = do(t, h, http.MethodPost, base+"/messages", `{"content":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank message: status %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodPost, base+"/messages", `{"content":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status %d", rec.Code)
	}

	_, resp = do(t, h, http.MethodGet, base, "")
	var got sessionView
	decodeData(t, resp.Data, &got)
	if len(got.Messages) != 3 {
		t.Fatalf("expected [greeting, question, answer], got %+v", got.Messages)
	}

	rec, _ = do(t, h, http.MethodDelete, base, "")
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodGet, base, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d", rec.Code)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

// go test -v --run TestWebSocket
func TestWebSocket(t *testing.T) {
	f := newFixture(t, nil)
	f.listing.push(ready(quotes()))
	f.srv.Start()
	defer f.srv.Stop()

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "history")
	readUntil(t, conn, "coins")

	if err := conn.WriteJSON(WSMessage{Type: "chat", Data: "ETH vs mining"}); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, "chat")
	var chat messageResponse
	decodeData(t, msg.Data, &chat)
	if _, want := assistant.NewDefaultResponder().Match("ethereum"); chat.Answer.Content != want {
		t.Errorf("chat answer: %q", chat.Answer.Content)
	}

	if err := conn.WriteJSON(WSMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, "pong")

	// Feed updates reach connected clients.
	f.global.push(ready(globalSnapshot()))
	readUntil(t, conn, "market")
}

func TestWebSocketRequiresRunningServer(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := do(t, f.srv.Handler(), http.MethodGet, "/ws", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before Start, got %d", rec.Code)
	}
}
