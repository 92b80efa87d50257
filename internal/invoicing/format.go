package invoicing

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// maxGroupedAmount bounds the integer part the locale printer can take as an int64.
var maxGroupedAmount = decimal.New(1, 18)

// FormatAmount renders d with two decimals and locale grouping, e.g. "1,234.50".
// The integer and cent parts are printed separately so no digit goes through a
// float. Amounts of 10^18 and above are printed ungrouped.
func FormatAmount(tag language.Tag, d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	if d.GreaterThanOrEqual(maxGroupedAmount) {
		return sign + d.StringFixed(2)
	}

	p := message.NewPrinter(tag)
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString(p.Sprint(number.Decimal(whole.IntPart())))
	b.WriteString(decimalSeparator(p))
	b.WriteString(p.Sprint(number.Decimal(cents, number.MinIntegerDigits(2))))
	return b.String()
}

// decimalSeparator extracts the separator the locale puts between 0 and 5 in "0.5".
func decimalSeparator(p *message.Printer) string {
	s := p.Sprint(number.Decimal(0.5, number.Scale(1)))
	_, first := utf8.DecodeRuneInString(s)
	_, last := utf8.DecodeLastRuneInString(s)
	if len(s) <= first+last {
		return "."
	}
	return s[first : len(s)-last]
}
