package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	// DefaultCurrency is the currency balances are held in.
	DefaultCurrency = "XAF"
	// DefaultLocale drives digit grouping when none is configured.
	DefaultLocale = "fr"
)

// Static display rates from DefaultCurrency. They are not fetched and drift
// from market rates; balances are never settled with them.
var rates = map[string]decimal.Decimal{
	"EUR": decimal.RequireFromString("0.0015"),
	"USD": decimal.RequireFromString("0.0016"),
}

// SupportedCurrencies lists DefaultCurrency followed by every convertible target.
func SupportedCurrencies() []string {
	return []string{DefaultCurrency, "EUR", "USD"}
}

// Convert applies the static rate for target and rounds to a whole unit.
// Unknown targets, and DefaultCurrency itself, return amount unchanged.
func Convert(amount decimal.Decimal, target string) decimal.Decimal {
	rate, ok := rates[strings.ToUpper(strings.TrimSpace(target))]
	if !ok {
		return amount
	}
	return amount.Mul(rate).Round(0)
}

// Formatter renders amounts with locale-aware digit grouping. Separators come
// from the locale; digits come from the decimal itself so large amounts
// never pass through float64.
type Formatter struct {
	group   string
	decimal string
}

// NewFormatter builds a formatter for a BCP 47 locale, falling back to
// DefaultLocale when the tag cannot be parsed.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.French
	}
	p := message.NewPrinter(tag)
	return &Formatter{
		group:   strings.Trim(p.Sprint(number.Decimal(1000)), "0123456789"),
		decimal: strings.Trim(p.Sprint(number.Decimal(0.5)), "0123456789"),
	}
}

// Format groups the integer part and keeps at most two fraction digits.
func (f *Formatter) Format(amount decimal.Decimal) string {
	amount = amount.Round(2)
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	for i, d := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.group)
		}
		b.WriteRune(d)
	}
	if frac != "" {
		b.WriteString(f.decimal)
		b.WriteString(frac)
	}
	return b.String()
}
