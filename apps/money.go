package apps

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money formats model outputs as amounts in one currency, grouped per locale.
type Money struct {
	Code   string
	Symbol string
	Locale string

	printer *message.Printer
}

func NewMoney(code, symbol, locale string) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("currency %q: %w", code, err)
	}
	if locale == "" {
		locale = "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Money{}, fmt.Errorf("locale %q: %w", locale, err)
	}
	if symbol == "" {
		symbol = unit.String()
	}
	return Money{
		Code:    unit.String(),
		Symbol:  symbol,
		Locale:  tag.String(),
		printer: message.NewPrinter(tag),
	}, nil
}

func mustMoney(code, symbol string) Money {
	m, err := NewMoney(code, symbol, "en")
	if err != nil {
		panic(err)
	}
	return m
}

// Format renders v with two decimals and digit grouping, e.g. "$452,600.00".
// Symbols longer than one rune are separated by a space.
func (m Money) Format(v float64) string {
	if m.printer == nil {
		return fmt.Sprintf("%.2f", v)
	}
	amount := m.printer.Sprintf("%.2f", math.Abs(v))
	sign := ""
	if v < 0 {
		sign = "-"
	}
	sep := ""
	if len([]rune(m.Symbol)) > 1 || m.Symbol == "₹" {
		sep = " "
	}
	return sign + m.Symbol + sep + amount
}

// Plain renders v with two decimals and the currency symbol but no grouping.
func (m Money) Plain(v float64) string {
	return strings.TrimSpace(fmt.Sprintf("%s %.2f", m.Symbol, v))
}

// Label is the heading for a price value, e.g. "Price (INR)".
func (m Money) Label() string {
	if m.Code == "" {
		return "Price"
	}
	return "Price (" + m.Code + ")"
}
