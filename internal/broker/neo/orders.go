package neo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"neotrader/internal/broker"
	"neotrader/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, order models.Order) (string, error) {
	if c.demoMode {
		// No session exists in demo mode, so skip the token lookup too.
		orderID := fmt.Sprintf("DEMO_%d_%s", time.Now().UnixNano(), order.Symbol)
		c.log.WithOrderID(orderID).WithFields(map[string]interface{}{
			"component": "neo",
			"symbol":    order.Symbol,
			"kind":      order.Kind,
			"side":      order.Side,
			"qty":       order.Quantity,
			"price":     order.Price,
		}).Info("Demo mode, order not sent to broker.")
		return orderID, nil
	}

	token, err := c.instrumentToken(ctx, order.Symbol)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instrument token for %s: %w", order.Symbol, err)
	}

	body := map[string]any{
		"instrumentToken": token,
		"quantity":        order.Quantity,
		"transactionType": string(order.Side),
		"product":         c.product,
		"validity":        c.validity,
		"exchangeSegment": c.exchangeSegment,
	}

	switch order.Kind {
	case models.OrderKindMarket:
		body["orderType"] = "MKT"
		body["price"] = 0.0
	case models.OrderKindStopLoss, models.OrderKindTarget:
		body["orderType"] = "SL-M"
		price := order.TriggerPrice
		if price == 0 {
			price = order.Price
		}
		body["price"] = price
		body["triggerPrice"] = price
	default:
		body["orderType"] = "LMT"
		body["price"] = order.Price
	}

	session, err := c.session()
	if err != nil {
		return "", err
	}

	var resp neoResponse[struct {
		NestOrderNumber string `json:"nestOrderNumber"`
	}]
	if err := c.doRequest(ctx, http.MethodPost, "/orders/2.0/quick/order/rule/ms/place", nil, body, session, &resp); err != nil {
		return "", err
	}
	if resp.Data.NestOrderNumber == "" {
		return "", fmt.Errorf("broker returned no order id")
	}

	c.log.WithOrderID(resp.Data.NestOrderNumber).WithFields(map[string]interface{}{
		"component": "neo",
		"symbol":    order.Symbol,
		"kind":      order.Kind,
		"side":      order.Side,
	}).Info("Order placed.")
	return resp.Data.NestOrderNumber, nil
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (broker.StatusReport, error) {
	if c.demoMode {
		// Demo orders are never filled by the broker; report them as
		// live so the monitor keeps polling.
		return broker.StatusReport{OrderID: orderID, Status: "OPEN"}, nil
	}

	session, err := c.session()
	if err != nil {
		return broker.StatusReport{}, err
	}

	params := url.Values{}
	params.Set("orderId", orderID)

	var resp neoResponse[struct {
		Status       string  `json:"stat"`
		FilledQty    int     `json:"qtyFilled"`
		AvgPrice     float64 `json:"avgPrc,string"`
		RemainingQty int     `json:"qtyRemaining"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/orders/2.0/quick/order/status", params, nil, session, &resp); err != nil {
		return broker.StatusReport{}, err
	}
	if resp.Data.Status == "" {
		return broker.StatusReport{}, fmt.Errorf("no status found for order %s", orderID)
	}

	return broker.StatusReport{
		OrderID:      orderID,
		Status:       resp.Data.Status,
		FilledQty:    resp.Data.FilledQty,
		AvgPrice:     resp.Data.AvgPrice,
		RemainingQty: resp.Data.RemainingQty,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.demoMode {
		c.log.WithOrderID(orderID).WithField("component", "neo").Info("Demo mode, cancel not sent to broker.")
		return nil
	}

	session, err := c.session()
	if err != nil {
		return err
	}

	body := map[string]any{
		"orderId": orderID,
	}
	var resp neoResponse[struct{}]
	if err := c.doRequest(ctx, http.MethodPost, "/orders/2.0/quick/order/cancel", nil, body, session, &resp); err != nil {
		return err
	}
	c.log.WithOrderID(orderID).WithField("component", "neo").Info("Order cancelled.")
	return nil
}
