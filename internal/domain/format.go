package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var million = decimal.NewFromInt(1_000_000)

// AddCommas groups the integer digits of v by thousands: 1234567.5 -> "1,234,567.5".
func AddCommas(v decimal.Decimal) string {
	s := v.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var sb strings.Builder
	sb.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	if hasFrac {
		sb.WriteByte('.')
		sb.WriteString(frac)
	}
	return sb.String()
}

// FormatPercentage renders a change ratio as a percentage with two decimals: 0.0123 -> "1.23%".
func FormatPercentage(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// ConvertToMillion truncates v to whole millions.
func ConvertToMillion(v decimal.Decimal) int64 {
	return v.Div(million).Floor().IntPart()
}
