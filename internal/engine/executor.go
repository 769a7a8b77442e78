package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"neotrader/internal/broker"
	"neotrader/internal/config"
	"neotrader/internal/logger"
	"neotrader/internal/metrics"
	"neotrader/internal/models"
)

// monitorHandle tracks one OCO monitor goroutine. done is closed only
// after the monitor's per-trade resources have been reclaimed, so a
// canceller that waited on it observes completed cleanup.
type monitorHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor places the three legs of a bracket trade and owns the OCO
// monitor spawned for each accepted bracket.
type Executor struct {
	cfg     *config.Config
	client  broker.Gateway
	log     *logger.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	monitors   map[string]*monitorHandle
	tradeLocks map[string]*sync.Mutex

	onTradeDone func(tradeID string)
}

func NewExecutor(cfg *config.Config, client broker.Gateway, log *logger.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		cfg:        cfg,
		client:     client,
		log:        log,
		metrics:    m,
		monitors:   map[string]*monitorHandle{},
		tradeLocks: map[string]*sync.Mutex{},
	}
}

// OnTradeDone registers a callback invoked after a monitor ends and its
// per-trade resources are reclaimed, for any exit path.
func (e *Executor) OnTradeDone(fn func(tradeID string)) {
	e.onTradeDone = fn
}

func (e *Executor) logEntry(trade *models.Trade) *logrus.Entry {
	return e.log.WithComponent("executor").WithFields(logrus.Fields{
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
	})
}

// Execute places the entry, stop-loss and target legs in that order and
// starts the OCO monitor once all three are accepted. Placement is
// fail-fast: the first leg the broker rejects aborts the submission,
// and legs already accepted are not rolled back. Failures come back as
// an unsuccessful TradeResult, never as an error.
func (e *Executor) Execute(ctx context.Context, symbol string, side models.OrderSide, quantity int, entryPrice, stopLossPoints, targetPoints float64) (models.TradeResult, *models.Trade) {
	if quantity <= 0 {
		return models.TradeResult{Success: false, Message: fmt.Sprintf("invalid quantity: %d", quantity)}, nil
	}
	if stopLossPoints < 0 || targetPoints < 0 {
		return models.TradeResult{Success: false, Message: "stop loss and target points must not be negative"}, nil
	}

	stopLossPrice, targetPrice := BracketPrices(side, entryPrice, stopLossPoints, targetPoints)
	exitSide := OppositeSide(side)

	marketOrder := models.NewOrder(symbol, models.OrderKindMarket, side, quantity, entryPrice, 0)
	stopLossOrder := models.NewOrder(symbol, models.OrderKindStopLoss, exitSide, quantity, stopLossPrice, stopLossPrice)
	targetOrder := models.NewOrder(symbol, models.OrderKindTarget, exitSide, quantity, targetPrice, targetPrice)

	log := e.log.WithFields(logrus.Fields{"component": "executor", "symbol": symbol})
	log.WithFields(logrus.Fields{
		"side":            side,
		"qty":             quantity,
		"entry_price":     entryPrice,
		"stop_loss_price": stopLossPrice,
		"target_price":    targetPrice,
	}).Info("Placing bracket order.")

	marketID, err := e.client.PlaceOrder(ctx, *marketOrder)
	if err != nil || marketID == "" {
		log.WithError(err).Error("Failed to place market order.")
		return models.TradeResult{Success: false, Message: "failed to place market order"}, nil
	}
	marketOrder.ID = marketID
	e.metrics.LegPlaced("market")

	// The broker needs the entry to register before it accepts the
	// linked exit legs.
	if !e.sleep(ctx, e.cfg.Trading.SettleDelay) {
		return models.TradeResult{Success: false, Message: "submission cancelled", OrderIDs: []string{marketID}}, nil
	}

	stopLossID, err := e.client.PlaceOrder(ctx, *stopLossOrder)
	if err != nil || stopLossID == "" {
		log.WithError(err).WithField("order_id", marketID).Error("Failed to place stop loss order, entry leg remains live at the broker.")
		return models.TradeResult{Success: false, Message: "failed to place stop loss order", OrderIDs: []string{marketID}}, nil
	}
	stopLossOrder.ID = stopLossID
	e.metrics.LegPlaced("stop_loss")

	targetID, err := e.client.PlaceOrder(ctx, *targetOrder)
	if err != nil || targetID == "" {
		log.WithError(err).WithField("order_id", marketID).Error("Failed to place target order, entry and stop loss legs remain live at the broker.")
		return models.TradeResult{Success: false, Message: "failed to place target order", OrderIDs: []string{marketID, stopLossID}}, nil
	}
	targetOrder.ID = targetID
	e.metrics.LegPlaced("target")

	trade := models.NewTrade(symbol, side, quantity, entryPrice, stopLossPoints, targetPoints, marketOrder, stopLossOrder, targetOrder)
	e.startMonitoring(trade)
	e.metrics.TradeOpened()

	return models.TradeResult{
		Success:  true,
		Message:  fmt.Sprintf("Trade placed successfully. Entry: %s, SL: %s, Target: %s", marketID, stopLossID, targetID),
		TradeID:  trade.ID,
		OrderIDs: []string{marketID, stopLossID, targetID},
	}, trade
}

// startMonitoring spawns the trade's OCO monitor, detached from the
// submission context so it survives the caller. The handle keeps the
// monitor cancellable and awaitable.
func (e *Executor) startMonitoring(trade *models.Trade) {
	mctx, cancel := context.WithCancel(context.Background())
	h := &monitorHandle{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.monitors[trade.ID] = h
	e.tradeLocks[trade.ID] = &sync.Mutex{}
	e.mu.Unlock()

	e.metrics.MonitorStarted()
	go func() {
		defer close(h.done)
		defer e.cleanupTrade(trade.ID)
		e.monitorOCO(mctx, trade)
	}()
}

// monitorOCO polls both exit legs until one of them fills. The
// stop-loss leg is checked first every iteration, so when both legs
// report filled in the same poll the stop-loss wins the race.
func (e *Executor) monitorOCO(ctx context.Context, trade *models.Trade) {
	entry := e.logEntry(trade)
	interval := e.cfg.Trading.PollInterval
	entry.Info("Order monitoring started.")

	for trade.IsActive() {
		if ctx.Err() != nil {
			entry.Info("Order monitoring cancelled.")
			return
		}

		slReport, slErr := e.client.OrderStatus(ctx, trade.StopLossOrder.ID)
		tgReport, tgErr := e.client.OrderStatus(ctx, trade.TargetOrder.ID)
		if slErr != nil || tgErr != nil {
			e.metrics.PollFault()
			if slErr != nil {
				entry.WithError(slErr).Debug("Transient status poll fault, retrying.")
			} else {
				entry.WithError(tgErr).Debug("Transient status poll fault, retrying.")
			}
			if !e.sleep(ctx, interval) {
				entry.Info("Order monitoring cancelled.")
				return
			}
			continue
		}

		applyReport(trade.StopLossOrder, slReport)
		applyReport(trade.TargetOrder, tgReport)

		if IsTerminalFilled(slReport.Status) {
			entry.WithField("order_id", trade.StopLossOrder.ID).Info("Stop loss order filled.")
			e.cancelLoserLeg(ctx, trade, trade.TargetOrder, tgReport.Status)
			if trade.Deactivate() {
				e.metrics.TradeResolved("stop_loss")
			}
			break
		}
		if IsTerminalFilled(tgReport.Status) {
			entry.WithField("order_id", trade.TargetOrder.ID).Info("Target order filled.")
			e.cancelLoserLeg(ctx, trade, trade.StopLossOrder, slReport.Status)
			if trade.Deactivate() {
				e.metrics.TradeResolved("target")
			}
			break
		}

		if !e.sleep(ctx, interval) {
			entry.Info("Order monitoring cancelled.")
			return
		}
	}

	entry.Info("Order monitoring ended.")
}

// cancelLoserLeg cancels the losing exit leg if it is still live at the
// broker. Best-effort: a failed cancel is logged and the trade still
// resolves, which can leave a stale live order behind.
func (e *Executor) cancelLoserLeg(ctx context.Context, trade *models.Trade, loser *models.Order, status string) {
	if !IsStillLive(status) {
		return
	}
	if err := e.client.CancelOrder(ctx, loser.ID); err != nil {
		e.logEntry(trade).WithError(err).WithField("order_id", loser.ID).Warn("Failed to cancel losing exit leg.")
		e.metrics.CancelFailed()
		return
	}
	loser.Status = models.OrderStatusCancelled
	e.logEntry(trade).WithFields(logrus.Fields{"order_id": loser.ID, "kind": loser.Kind}).Info("Losing exit leg cancelled.")
	e.metrics.LegCancelled()
}

// CancelTradeOrders cancels the trade's monitor goroutine and waits for
// its termination, so cleanup has completed before this returns.
// Unknown trade ids are a no-op success.
func (e *Executor) CancelTradeOrders(tradeID string) bool {
	e.mu.Lock()
	h, ok := e.monitors[tradeID]
	e.mu.Unlock()
	if !ok {
		return true
	}
	h.cancel()
	<-h.done
	return true
}

// cleanupTrade drops the per-trade tracking handle and lock. Runs
// exactly once per monitor, on every exit path.
func (e *Executor) cleanupTrade(tradeID string) {
	e.mu.Lock()
	delete(e.monitors, tradeID)
	delete(e.tradeLocks, tradeID)
	e.mu.Unlock()

	e.metrics.MonitorEnded()
	e.log.WithFields(logrus.Fields{"component": "executor", "trade_id": tradeID}).Info("Cleaned up trade resources.")
	if e.onTradeDone != nil {
		e.onTradeDone(tradeID)
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func applyReport(order *models.Order, report broker.StatusReport) {
	if report.Status != "" {
		order.Status = models.OrderStatus(strings.ToUpper(report.Status))
	}
	if report.FilledQty > 0 {
		order.FilledQty = report.FilledQty
	}
	if report.AvgPrice > 0 {
		order.AvgPrice = report.AvgPrice
	}
}
