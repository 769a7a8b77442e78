package broker

import (
	"context"

	"neotrader/internal/models"
)

// StatusReport is a broker-side snapshot of one order. Status is an
// open string set: the engine classifies the values it knows and
// ignores the rest.
type StatusReport struct {
	OrderID      string
	Status       string
	FilledQty    int
	AvgPrice     float64
	RemainingQty int
}

type Gateway interface {
	PlaceOrder(ctx context.Context, order models.Order) (string, error)
	OrderStatus(ctx context.Context, orderID string) (StatusReport, error)
	CancelOrder(ctx context.Context, orderID string) error
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
