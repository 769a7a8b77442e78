package engine

import (
	"strings"

	"neotrader/internal/models"
)

// BracketPrices derives the stop-loss and target trigger prices from
// the entry price and the two point distances. For a Buy entry the stop
// sits below the entry and the target above; Sell is mirrored. The
// prices are computed once at trade creation and never recomputed.
func BracketPrices(side models.OrderSide, entryPrice, stopLossPoints, targetPoints float64) (stopLossPrice, targetPrice float64) {
	if side == models.OrderSideBuy {
		return entryPrice - stopLossPoints, entryPrice + targetPoints
	}
	return entryPrice + stopLossPoints, entryPrice - targetPoints
}

func OppositeSide(side models.OrderSide) models.OrderSide {
	if side == models.OrderSideBuy {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

// Broker status strings are an open set. Only the values below drive
// OCO resolution; everything else is inert and keeps the poll going.
var (
	terminalFilledStatuses = map[string]bool{
		"COMPLETE": true,
		"FILLED":   true,
		"EXECUTED": true,
	}
	stillLiveStatuses = map[string]bool{
		"PENDING":         true,
		"TRIGGER_PENDING": true,
		"OPEN":            true,
	}
)

// IsTerminalFilled reports whether status means the leg fully executed
// and can no longer be cancelled.
func IsTerminalFilled(status string) bool {
	return terminalFilledStatuses[strings.ToUpper(status)]
}

// IsStillLive reports whether status means the leg is live at the
// broker and a cancel can be attempted.
func IsStillLive(status string) bool {
	return stillLiveStatuses[strings.ToUpper(status)]
}
