package cli

import (
	"regexp"
	"strconv"
	"strings"

	"neotrader/internal/models"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9\-&]*$`)

func ValidateSymbol(symbol string) bool {
	return symbolPattern.MatchString(strings.TrimSpace(symbol))
}

// ValidateQuantity parses a positive integer quantity, returning 0 when
// the input is not one.
func ValidateQuantity(input string) int {
	quantity, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || quantity <= 0 {
		return 0
	}
	return quantity
}

// ValidatePoints parses a non-negative float, returning ok=false for
// anything else. Zero is a legal point distance.
func ValidatePoints(input string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// ParseSide accepts B/BUY and S/SELL in any case.
func ParseSide(input string) (models.OrderSide, bool) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "B", "BUY":
		return models.OrderSideBuy, true
	case "S", "SELL":
		return models.OrderSideSell, true
	default:
		return "", false
	}
}
