package monitor

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"coinfeed/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiBlue     = "\033[34m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

const noData = "--"

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	Color bool
}

func NewFormatter(color bool) *Formatter {
	return &Formatter{Color: color}
}

func (f *Formatter) paint(s, c string) string {
	if !f.Color {
		return s
	}
	return colorize(s, c)
}

// RenderRow renders "name SYM/QUOTE price change rate acc" for one row.
// Rising rates are red and falling ones blue.
func (f *Formatter) RenderRow(r Row) string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	sb.WriteString(" ")
	sb.WriteString(f.paint(r.Symbol()+"/"+r.Market.Quote(), ansiDim))
	sb.WriteString(" ")

	if !r.HasValue {
		sb.WriteString(noData)
		return sb.String()
	}

	q := r.Quote
	col := ansiRed
	if q.SignedChangeRate.IsNegative() {
		col = ansiBlue
	}
	price := domain.AddCommas(q.TradePrice)
	switch r.Direction {
	case domain.DirectionUp:
		price += "▲"
	case domain.DirectionDown:
		price += "▼"
	}

	sb.WriteString(f.paint(price, col))
	sb.WriteString(" ")
	sb.WriteString(domain.AddCommas(q.SignedChangePrice))
	sb.WriteString(" ")
	sb.WriteString(f.paint(domain.FormatPercentage(q.SignedChangeRate), col))
	sb.WriteString(" ")
	sb.WriteString(domain.AddCommas(decimal.NewFromInt(domain.ConvertToMillion(q.AccTradePrice24h))))
	sb.WriteString("M")
	return sb.String()
}

// RenderLive renders one row as an in-place status line.
func (f *Formatter) RenderLive(r Row) string {
	var sb strings.Builder
	sb.WriteString("\r")
	sb.WriteString(f.paint("[COINFEED] ", ansiDim))
	sb.WriteString(f.RenderRow(r))
	if f.Color {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

// RenderBoard renders every row, one per line.
func (f *Formatter) RenderBoard(rows []Row) string {
	if len(rows) == 0 {
		return f.paint("[COINFEED] ", ansiDim) + noData
	}
	var sb strings.Builder
	sb.WriteString(f.paint("[COINFEED] "+strconv.Itoa(len(rows))+" markets", ansiDim))
	for _, r := range rows {
		sb.WriteString("\n")
		sb.WriteString("  ")
		sb.WriteString(f.RenderRow(r))
	}
	return sb.String()
}
