package models

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type OrderSide string
type OrderKind string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderKindMarket   OrderKind = "MARKET"
	OrderKindLimit    OrderKind = "LIMIT"
	OrderKindStopLoss OrderKind = "STOP_LOSS"
	OrderKindTarget   OrderKind = "TARGET"

	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusTriggerPending  OrderStatus = "TRIGGER_PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Order is one leg of a bracket. TriggerPrice is set only for the
// STOP_LOSS and TARGET kinds.
type Order struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Kind         OrderKind   `json:"kind"`
	Side         OrderSide   `json:"side"`
	Quantity     int         `json:"quantity"`
	Price        float64     `json:"price"`
	TriggerPrice float64     `json:"trigger_price,omitempty"`
	Status       OrderStatus `json:"status"`
	FilledQty    int         `json:"filled_qty"`
	AvgPrice     float64     `json:"avg_price,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

func NewOrder(symbol string, kind OrderKind, side OrderSide, quantity int, price, triggerPrice float64) *Order {
	return &Order{
		ID:           uuid.New().String(),
		Symbol:       symbol,
		Kind:         kind,
		Side:         side,
		Quantity:     quantity,
		Price:        price,
		TriggerPrice: triggerPrice,
		Status:       OrderStatusPending,
		CreatedAt:    time.Now(),
	}
}

// Trade is one bracket: an entry leg plus the stop-loss and target exit
// legs. The exit legs always carry the side opposite to the entry side,
// with trigger prices derived once at creation.
type Trade struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Quantity       int
	EntryPrice     float64
	StopLossPoints float64
	TargetPoints   float64
	MarketOrder    *Order
	StopLossOrder  *Order
	TargetOrder    *Order
	CreatedAt      time.Time

	active atomic.Bool
}

func NewTrade(symbol string, side OrderSide, quantity int, entryPrice, stopLossPoints, targetPoints float64, market, stopLoss, target *Order) *Trade {
	t := &Trade{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		EntryPrice:     entryPrice,
		StopLossPoints: stopLossPoints,
		TargetPoints:   targetPoints,
		MarketOrder:    market,
		StopLossOrder:  stopLoss,
		TargetOrder:    target,
		CreatedAt:      time.Now(),
	}
	t.active.Store(true)
	return t
}

func (t *Trade) IsActive() bool {
	return t.active.Load()
}

// Deactivate flips the trade to inactive. It reports whether this call
// performed the transition, so resolution happens exactly once even if
// the monitor and an external canceller race.
func (t *Trade) Deactivate() bool {
	return t.active.CompareAndSwap(true, false)
}

// MarketData is a single quote sample, not accumulated into history.
type MarketData struct {
	Symbol        string    `json:"symbol"`
	LTP           float64   `json:"ltp"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// TradeResult is the outcome of a submission attempt. It is always
// returned as a value, never as an error.
type TradeResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	TradeID  string   `json:"trade_id,omitempty"`
	OrderIDs []string `json:"order_ids,omitempty"`
}
