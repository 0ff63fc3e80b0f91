// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and decimal representations.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to Money with half-up rounding to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, as are
// thousands separators when both are present ("1.234,56", "1,234.56").
// Negative values are allowed: bank exports use them for debits.
//
// Examples:
//
//	ParseAmount("12.34")    -> 1234
//	ParseAmount("-7,5")     -> -750
//	ParseAmount("1.234,56") -> 123456
//	ParseAmount("12.345")   -> 1235
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return Money{}, ErrInvalidAmount
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// MoneyFromFloat rounds a float amount to the nearest cent.
func MoneyFromFloat(f float64) Money {
	return Money{Cents: decimal.NewFromFloat(f).Mul(hundred).Round(0).IntPart()}
}

// Float returns the amount in major units, for JSON payloads.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	f, _ := decimal.New(m.Cents, -2).Float64()
	return f
}

// String formats the amount with two decimals.
func (m Money) String() string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}
