// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from the numbers
// and numeric strings the backend emits, and converting between cents and
// decimal representations.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a signed decimal string to cents.
//
// It accepts dot (12.34) and comma (12,34) decimal separators. When both
// appear, the right-most one is the decimal separator and the other is read as
// digit grouping ("1.500,50" and "1,500.50" are both 150050). Half-up rounding
// applies on the third fraction digit, away from zero for negative values.
// Exponent notation ("1e3") falls back to float parsing.
//
// Examples:
//
//	ParseDecimalToCents("12.34")    -> 1234, nil
//	ParseDecimalToCents("-12.345")  -> -1235, nil
//	ParseDecimalToCents("1,500")    -> 0, ErrInvalidAmount
//	ParseDecimalToCents("1.500,50") -> 150050, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return parseFloatToCents(s)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	s, err := normalizeSeparators(s)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// normalizeSeparators rewrites s so that '.' is the only decimal separator
// and grouping separators are dropped. Grouping must come in blocks of three
// digits. A lone comma followed by exactly three digits ("1,500") could be
// either and is rejected. A lone dot is always decimal, as in JSON numbers.
func normalizeSeparators(s string) (string, error) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma == -1 && strings.Count(s, ".") <= 1:
		return s, nil
	case lastComma == -1:
		return dropGrouping(s, '.')
	case lastDot == -1 && strings.Count(s, ",") == 1:
		if len(s)-lastComma-1 == 3 {
			return "", ErrInvalidAmount
		}
		return s[:lastComma] + "." + s[lastComma+1:], nil
	case lastDot == -1:
		return dropGrouping(s, ',')
	case lastComma > lastDot:
		intPart, err := dropGrouping(s[:lastComma], '.')
		if err != nil {
			return "", err
		}
		return intPart + "." + s[lastComma+1:], nil
	default:
		intPart, err := dropGrouping(s[:lastDot], ',')
		if err != nil {
			return "", err
		}
		return intPart + "." + s[lastDot+1:], nil
	}
}

// dropGrouping removes sep from an integer part such as "1.234.567".
func dropGrouping(s string, sep byte) (string, error) {
	groups := strings.Split(s, string(sep))
	if len(groups) == 1 {
		return s, nil
	}
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return "", ErrInvalidAmount
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return "", ErrInvalidAmount
		}
	}
	return strings.Join(groups, ""), nil
}

func parseFloatToCents(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	c := math.Round(f * 100)
	if math.Abs(c) > math.MaxInt64/2 {
		return 0, ErrInvalidAmount
	}
	return int64(c), nil
}

// Units returns the amount in whole currency units for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Decimal renders the amount as a plain dot-separated decimal ("-12.34").
func (m Money) Decimal() string {
	a := m.Abs()
	s := strconv.FormatInt(a.Cents/100, 10) + "." + fmt.Sprintf("%02d", a.Cents%100)
	if m.IsNegative() {
		return "-" + s
	}
	return s
}

// UnmarshalJSON accepts JSON numbers, numeric strings and null.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Money{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	cents, err := ParseDecimalToCents(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	m.Cents = cents
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}
