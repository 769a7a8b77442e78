package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"neotrader/internal/logger"
	"neotrader/internal/marketdata"
	"neotrader/internal/models"
)

type streamHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the registry over concurrent trades and price streams.
// The two registries are guarded by separate locks that are never
// nested, and neither lock is held across a blocking call.
type Manager struct {
	executor *Executor
	quotes   *marketdata.Stream
	log      *logger.Logger

	tradesMu     sync.Mutex
	activeTrades map[string]*models.Trade

	streamsMu  sync.Mutex
	ltpStreams map[string]*streamHandle
}

func NewManager(executor *Executor, quotes *marketdata.Stream, log *logger.Logger) *Manager {
	m := &Manager{
		executor:     executor,
		quotes:       quotes,
		log:          log,
		activeTrades: map[string]*models.Trade{},
		ltpStreams:   map[string]*streamHandle{},
	}
	executor.OnTradeDone(m.RemoveActiveTrade)
	return m
}

func (m *Manager) logEntry() *logrus.Entry {
	return m.log.WithComponent("manager")
}

// ExecuteNewTrade submits one bracket trade. The registry lock is held
// for the duration of the call, serializing submission across
// concurrent callers; it is released before monitoring begins.
func (m *Manager) ExecuteNewTrade(ctx context.Context, symbol string, side models.OrderSide, quantity int, entryPrice, stopLossPoints, targetPoints float64) models.TradeResult {
	m.tradesMu.Lock()
	defer m.tradesMu.Unlock()

	result, trade := m.executor.Execute(ctx, symbol, side, quantity, entryPrice, stopLossPoints, targetPoints)
	if result.Success && trade != nil {
		m.activeTrades[trade.ID] = trade
		m.logEntry().WithFields(logrus.Fields{
			"trade_id": trade.ID,
			"symbol":   symbol,
		}).Info("Started trade.")
	}
	return result
}

func (m *Manager) AddActiveTrade(trade *models.Trade) {
	m.tradesMu.Lock()
	defer m.tradesMu.Unlock()
	m.activeTrades[trade.ID] = trade
	m.logEntry().WithField("trade_id", trade.ID).Info("Added trade to active trades.")
}

func (m *Manager) RemoveActiveTrade(tradeID string) {
	m.tradesMu.Lock()
	defer m.tradesMu.Unlock()
	if _, ok := m.activeTrades[tradeID]; ok {
		delete(m.activeTrades, tradeID)
		m.logEntry().WithField("trade_id", tradeID).Info("Removed trade from active trades.")
	}
}

func (m *Manager) ActiveTradeCount() int {
	m.tradesMu.Lock()
	defer m.tradesMu.Unlock()
	return len(m.activeTrades)
}

// ActiveTrades returns a snapshot copy, never a live view.
func (m *Manager) ActiveTrades() []*models.Trade {
	m.tradesMu.Lock()
	defer m.tradesMu.Unlock()
	trades := make([]*models.Trade, 0, len(m.activeTrades))
	for _, trade := range m.activeTrades {
		trades = append(trades, trade)
	}
	return trades
}

// CancelTrade stops the trade's monitor and removes it from the
// registry once the executor confirms cancellation. Unknown ids are a
// no-op success.
func (m *Manager) CancelTrade(tradeID string) bool {
	if !m.executor.CancelTradeOrders(tradeID) {
		return false
	}
	m.RemoveActiveTrade(tradeID)
	return true
}

// CancelAllTrades snapshots the registry and then cancels each trade
// outside the lock, so the registry is never held across the blocking
// waits on monitor termination.
func (m *Manager) CancelAllTrades() {
	m.tradesMu.Lock()
	tradeIDs := make([]string, 0, len(m.activeTrades))
	for tradeID := range m.activeTrades {
		tradeIDs = append(tradeIDs, tradeID)
	}
	m.tradesMu.Unlock()

	for _, tradeID := range tradeIDs {
		m.CancelTrade(tradeID)
	}
}

// StartLtpStream installs a price stream for the symbol. At most one
// stream runs per symbol: an existing one is cancelled and awaited
// before the replacement starts.
func (m *Manager) StartLtpStream(ctx context.Context, symbol string, callback marketdata.UpdateFunc) {
	m.stopStream(symbol)

	sctx, cancel := context.WithCancel(ctx)
	h := &streamHandle{cancel: cancel, done: make(chan struct{})}

	m.streamsMu.Lock()
	m.ltpStreams[symbol] = h
	m.streamsMu.Unlock()

	go func() {
		defer close(h.done)
		if err := m.quotes.Run(sctx, symbol, callback); err != nil && !errors.Is(err, context.Canceled) {
			m.logEntry().WithField("symbol", symbol).WithError(err).Error("LTP stream failed.")
		}
	}()
}

func (m *Manager) StopLtpStream(symbol string) {
	m.stopStream(symbol)
}

// StopAllLtpStreams snapshots the stream registry and stops each stream
// outside the lock.
func (m *Manager) StopAllLtpStreams() {
	m.streamsMu.Lock()
	symbols := make([]string, 0, len(m.ltpStreams))
	for symbol := range m.ltpStreams {
		symbols = append(symbols, symbol)
	}
	m.streamsMu.Unlock()

	for _, symbol := range symbols {
		m.stopStream(symbol)
	}
}

// stopStream removes the symbol's handle under the lock, then cancels
// and awaits the stream task outside it.
func (m *Manager) stopStream(symbol string) {
	m.streamsMu.Lock()
	h, ok := m.ltpStreams[symbol]
	if ok {
		delete(m.ltpStreams, symbol)
	}
	m.streamsMu.Unlock()

	if !ok {
		return
	}
	h.cancel()
	<-h.done
}

// TradeSummary is one row of the overall status report.
type TradeSummary struct {
	TradeID    string           `json:"trade_id"`
	Symbol     string           `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	Quantity   int              `json:"quantity"`
	EntryPrice float64          `json:"entry_price"`
	Active     bool             `json:"active"`
}

type OverallStatus struct {
	TotalActiveTrades int            `json:"total_active_trades"`
	Trades            []TradeSummary `json:"trades"`
}

func (m *Manager) GetOverallStatus() OverallStatus {
	trades := m.ActiveTrades()
	status := OverallStatus{
		TotalActiveTrades: len(trades),
		Trades:            make([]TradeSummary, 0, len(trades)),
	}
	for _, trade := range trades {
		status.Trades = append(status.Trades, TradeSummary{
			TradeID:    trade.ID,
			Symbol:     trade.Symbol,
			Side:       trade.Side,
			Quantity:   trade.Quantity,
			EntryPrice: trade.EntryPrice,
			Active:     trade.IsActive(),
		})
	}
	return status
}

// Cleanup is the shutdown hook: cancels every trade monitor, then stops
// every price stream. Called once at process teardown.
func (m *Manager) Cleanup() {
	m.logEntry().Info("Cleaning up trade manager resources.")
	m.CancelAllTrades()
	m.StopAllLtpStreams()
	m.logEntry().Info("Trade manager cleanup completed.")
}
