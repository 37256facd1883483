package format

import (
	"testing"
	"time"

	"cryptodash/internal/market"

	"github.com/shopspring/decimal"
)

func TestCurrency(t *testing.T) {
	f := German()
	tests := []struct {
		in   string
		code string
		want string
	}{
		{"64123.45", "eur", "64.123,45 €"},
		{"0.5", "USD", "0,50 $"},
		{"1234567.891", "eur", "1.234.567,89 €"},
	}
	for _, tt := range tests {
		if got := f.Currency(decimal.RequireFromString(tt.in), tt.code); got != tt.want {
			t.Errorf("Currency(%s, %s) = %q, want %q", tt.in, tt.code, got, tt.want)
		}
	}
}

// go test -v --run TestCompact
func TestCompact(t *testing.T) {
	f := German()
	tests := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(2_232_000_000_000), "2,23 Bio. €"},
		{decimal.NewFromInt(93_000_000_000), "93 Mrd. €"},
		{decimal.NewFromInt(4_500_000), "4,5 Mio. €"},
		{decimal.NewFromInt(950), "950 €"},
	}
	for _, tt := range tests {
		if got := f.Compact(tt.in, "eur"); got != tt.want {
			t.Errorf("Compact(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBillions(t *testing.T) {
	if got := German().Billions(decimal.NewFromInt(1_116_000_000_000), "eur"); got != "1.116 Mrd. €" {
		t.Errorf("got %q", got)
	}
}

func TestPercentAndChange(t *testing.T) {
	f := German()
	if got := f.Percent(52, 1); got != "52,0%" {
		t.Errorf("Percent: got %q", got)
	}
	if got := f.Change(market.Some(1.5)); got != "+1,50%" {
		t.Errorf("positive change: got %q", got)
	}
	if got := f.Change(market.Some(-0.75)); got != "-0,75%" {
		t.Errorf("negative change: got %q", got)
	}
	if got := f.Change(market.None()); got != Missing {
		t.Errorf("absent change: got %q", got)
	}
}

func TestSymbolAndDate(t *testing.T) {
	if Symbol("eur") != "€" || Symbol("usd") != "$" {
		t.Error("unexpected symbols")
	}
	if got := Symbol("xyz"); got != "XYZ" {
		t.Errorf("unknown code: got %q", got)
	}
	if got := Date(time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)); got != "10.06.2024" {
		t.Errorf("Date: got %q", got)
	}
	if Date(time.Time{}) != Missing {
		t.Error("zero date should be missing")
	}
}
