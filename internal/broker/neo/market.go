package neo

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
)

func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if c.demoMode {
		return c.demoQuote(symbol), nil
	}

	token, err := c.instrumentToken(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve instrument token for %s: %w", symbol, err)
	}

	session, err := c.session()
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("instrumentToken", token)
	params.Set("exchangeSegment", c.exchangeSegment)

	var resp neoResponse[struct {
		LastTradedPrice float64 `json:"last_traded_price"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/quotes/2.0/ltp", params, nil, session, &resp); err != nil {
		return 0, err
	}
	if resp.Data.LastTradedPrice <= 0 {
		return 0, fmt.Errorf("no quote available for %s", symbol)
	}
	return resp.Data.LastTradedPrice, nil
}

// demoQuote fabricates a slowly drifting price so demo sessions work
// without a broker connection. The base level is derived from the
// symbol so repeated quotes stay in a plausible band.
func (c *Client) demoQuote(symbol string) float64 {
	c.demoMu.Lock()
	defer c.demoMu.Unlock()

	last, ok := c.demoLTP[symbol]
	if !ok {
		base := 100.0
		for _, r := range symbol {
			base += float64(r)
		}
		last = base
	}
	last += last * (rand.Float64() - 0.5) * 0.001
	c.demoLTP[symbol] = last
	return last
}

// instrumentToken resolves a trading symbol to the broker's instrument
// token. Tokens are stable for the trading day, so results are cached.
func (c *Client) instrumentToken(ctx context.Context, symbol string) (string, error) {
	c.tokenMu.Lock()
	if token, ok := c.tokenCache[symbol]; ok {
		c.tokenMu.Unlock()
		return token, nil
	}
	c.tokenMu.Unlock()

	session, err := c.session()
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("exchangeSegment", c.exchangeSegment)
	params.Set("symbol", symbol)

	var resp neoResponse[[]struct {
		InstrumentToken string `json:"instrument_token"`
		TradingSymbol   string `json:"trading_symbol"`
	}]
	if err := c.doRequest(ctx, http.MethodGet, "/masterscrip/1.0/search", params, nil, session, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].InstrumentToken == "" {
		return "", fmt.Errorf("no instrument found for symbol %s", symbol)
	}

	token := resp.Data[0].InstrumentToken
	c.tokenMu.Lock()
	c.tokenCache[symbol] = token
	c.tokenMu.Unlock()
	return token, nil
}
