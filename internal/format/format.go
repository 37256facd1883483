// Package format renders market figures for German-speaking readers:
// "." grouping, "," decimals and Mio./Mrd./Bio. compact units.
package format

import (
	"strings"
	"time"

	"cryptodash/internal/market"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Missing is shown in place of an absent value.
const Missing = "–"

var symbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"JPY": "¥",
	"CHF": "CHF",
}

var units = []struct {
	scale decimal.Decimal
	label string
}{
	{decimal.New(1, 12), "Bio."},
	{decimal.New(1, 9), "Mrd."},
	{decimal.New(1, 6), "Mio."},
}

// Formatter is safe for concurrent use.
type Formatter struct {
	tag language.Tag
}

func New(tag language.Tag) *Formatter {
	return &Formatter{tag: tag}
}

func German() *Formatter {
	return New(language.German)
}

func (f *Formatter) printer() *message.Printer {
	return message.NewPrinter(f.tag)
}

// Symbol returns the display symbol for an ISO code, or the upper-case code.
func Symbol(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if s, ok := symbols[c]; ok {
		return s
	}
	if u, err := currency.ParseISO(c); err == nil {
		return u.String()
	}
	return c
}

// Currency formats an amount with two fraction digits, e.g. "64.123,45 €".
func (f *Formatter) Currency(d decimal.Decimal, code string) string {
	v := d.Round(2).InexactFloat64()
	s := f.printer().Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	return s + " " + Symbol(code)
}

// Compact formats large amounts in Mio./Mrd./Bio. with at most two fraction
// digits, e.g. "2,23 Bio. €".
func (f *Formatter) Compact(d decimal.Decimal, code string) string {
	abs := d.Abs()
	for _, u := range units {
		if abs.GreaterThanOrEqual(u.scale) {
			v := d.Div(u.scale).Round(2).InexactFloat64()
			return f.printer().Sprint(number.Decimal(v, number.MaxFractionDigits(2))) + " " + u.label + " " + Symbol(code)
		}
	}
	v := d.Round(2).InexactFloat64()
	return f.printer().Sprint(number.Decimal(v, number.MaxFractionDigits(2))) + " " + Symbol(code)
}

// Billions formats an amount as whole billions for chart labels, e.g. "1.116 Mrd. €".
func (f *Formatter) Billions(d decimal.Decimal, code string) string {
	v := d.Div(decimal.New(1, 9)).Round(0).InexactFloat64()
	return f.printer().Sprint(number.Decimal(v, number.MaxFractionDigits(0))) + " Mrd. " + Symbol(code)
}

// Percent formats v with a fixed number of fraction digits, e.g. "52,0%".
func (f *Formatter) Percent(v float64, digits int) string {
	return f.printer().Sprint(number.Decimal(v, number.MinFractionDigits(digits), number.MaxFractionDigits(digits))) + "%"
}

// Change formats a signed 24h change, or Missing when absent.
func (f *Formatter) Change(o market.OptionalFloat) string {
	v, ok := o.Get()
	if !ok {
		return Missing
	}
	s := f.Percent(v, 2)
	if v > 0 {
		return "+" + s
	}
	return s
}

// Date formats t as dd.mm.yyyy.
func Date(t time.Time) string {
	if t.IsZero() {
		return Missing
	}
	return t.Format("02.01.2006")
}
