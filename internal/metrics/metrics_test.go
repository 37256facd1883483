package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptodash/internal/market/feed"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ feed.Recorder = (*Metrics)(nil)

func TestRecorderEvents(t *testing.T) {
	m := New()

	m.FetchStarted("listing")
	if got := testutil.ToFloat64(m.InFlight.WithLabelValues("listing")); got != 1 {
		t.Fatalf("in flight: got %v", got)
	}
	m.FetchFinished("listing", 120*time.Millisecond, nil)
	m.FetchStarted("listing")
	m.FetchFinished("listing", time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.InFlight.WithLabelValues("listing")); got != 0 {
		t.Errorf("in flight after finish: got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("listing", "success")); got != 1 {
		t.Errorf("success count: got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("listing", "error")); got != 1 {
		t.Errorf("error count: got %v", got)
	}

	m.Coalesced("global")
	m.Coalesced("global")
	m.Discarded("global")
	if got := testutil.ToFloat64(m.CoalescedTotal.WithLabelValues("global")); got != 2 {
		t.Errorf("coalesced: got %v", got)
	}
	if got := testutil.ToFloat64(m.DiscardedTotal.WithLabelValues("global")); got != 1 {
		t.Errorf("discarded: got %v", got)
	}

	ts := time.Unix(1718000000, 0)
	m.Published("global", true, ts)
	if got := testutil.ToFloat64(m.ErrorFlag.WithLabelValues("global")); got != 1 {
		t.Errorf("error flag: got %v", got)
	}
	if got := testutil.ToFloat64(m.LastSuccess.WithLabelValues("global")); got != 1718000000 {
		t.Errorf("last success: got %v", got)
	}
	m.Published("global", false, ts.Add(time.Minute))
	if got := testutil.ToFloat64(m.ErrorFlag.WithLabelValues("global")); got != 0 {
		t.Errorf("error flag after success: got %v", got)
	}
}

func TestHandlerExposesFeedMetrics(t *testing.T) {
	m := New()
	m.FetchStarted("news")
	m.FetchFinished("news", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `cryptodash_feed_fetches_total{feed="news",result="success"} 1`) {
		t.Errorf("fetch counter missing from exposition:\n%s", body)
	}
}
