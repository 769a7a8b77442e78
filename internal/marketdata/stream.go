// Package marketdata provides the LTP polling stream shown in the
// terminal while the operator fills in trade parameters, and the
// one-shot quote read used to seed an entry price.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"neotrader/internal/broker"
	"neotrader/internal/logger"
	"neotrader/internal/models"
)

// UpdateFunc receives each quote sample observed by a stream.
type UpdateFunc func(models.MarketData)

// Stream polls last traded prices. One Stream serves any number of
// symbols; Run is safe to call concurrently from separate goroutines.
type Stream struct {
	client   broker.Gateway
	log      *logger.Logger
	interval time.Duration
	out      io.Writer

	mu      sync.Mutex
	lastLTP map[string]float64
}

func New(client broker.Gateway, log *logger.Logger, interval time.Duration) *Stream {
	if interval <= 0 {
		interval = 1 * time.Second
	}
	return &Stream{
		client:   client,
		log:      log,
		interval: interval,
		out:      os.Stdout,
		lastLTP:  map[string]float64{},
	}
}

// SetOutput redirects the in-place terminal rendering, used by tests.
func (s *Stream) SetOutput(w io.Writer) {
	s.out = w
}

// Run polls the symbol's LTP until ctx is cancelled, rendering each
// sample in place on the terminal and passing it to callback when one
// is set. Failed polls are skipped, not fatal.
func (s *Stream) Run(ctx context.Context, symbol string, callback UpdateFunc) error {
	defer s.clearLine()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ltp, err := s.client.LastPrice(ctx, symbol)
		if err != nil {
			s.log.WithComponent("marketdata").WithField("symbol", symbol).WithError(err).Debug("Quote poll failed.")
		} else {
			s.record(symbol, ltp)
			fmt.Fprintf(s.out, "\r\033[K%s | LTP: %.2f", symbol, ltp)
			if callback != nil {
				callback(models.MarketData{
					Symbol:    symbol,
					LTP:       ltp,
					Timestamp: time.Now(),
				})
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Current fetches a fresh quote for the symbol and remembers it.
func (s *Stream) Current(ctx context.Context, symbol string) (float64, error) {
	ltp, err := s.client.LastPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	s.record(symbol, ltp)
	return ltp, nil
}

// Last returns the most recent LTP observed for the symbol, if any.
func (s *Stream) Last(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ltp, ok := s.lastLTP[symbol]
	return ltp, ok
}

func (s *Stream) record(symbol string, ltp float64) {
	s.mu.Lock()
	s.lastLTP[symbol] = ltp
	s.mu.Unlock()
}

func (s *Stream) clearLine() {
	fmt.Fprint(s.out, "\r\033[K")
}
