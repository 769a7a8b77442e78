// Package neo is a REST client for the Kotak Neo trade API. It covers
// the four calls the engine needs (place, status, cancel, quote) plus
// the login handshake and instrument-token lookup behind them.
package neo

import (
	"net/http"
	"sync"
	"time"

	"neotrader/internal/config"
	"neotrader/internal/logger"
)

type Client struct {
	baseURL         string
	consumerKey     string
	consumerSecret  string
	mobile          string
	password        string
	totpSecret      string
	environment     string
	exchangeSegment string
	product         string
	validity        string
	demoMode        bool

	httpClient *http.Client
	log        *logger.Logger

	sessionMu    sync.Mutex
	viewToken    string
	sessionToken string
	sid          string

	tokenMu    sync.Mutex
	tokenCache map[string]string

	demoMu  sync.Mutex
	demoLTP map[string]float64
}

func New(cfg config.BrokerConfig, trading config.TradingConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:         cfg.BaseURL,
		consumerKey:     cfg.ConsumerKey,
		consumerSecret:  cfg.ConsumerSecret,
		mobile:          cfg.Mobile,
		password:        cfg.Password,
		totpSecret:      cfg.TOTPSecret,
		environment:     cfg.Environment,
		exchangeSegment: trading.ExchangeSegment,
		product:         trading.Product,
		validity:        trading.Validity,
		demoMode:        cfg.DemoMode,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log:        log,
		tokenCache: map[string]string{},
		demoLTP:    map[string]float64{},
	}
}

func (c *Client) DemoMode() bool {
	return c.demoMode
}
