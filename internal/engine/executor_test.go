package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"neotrader/internal/broker"
	"neotrader/internal/config"
	"neotrader/internal/logger"
	"neotrader/internal/models"
)

// fakeGateway scripts broker behavior per order. Status sequences are
// consumed one entry per poll; the final entry repeats.
type fakeGateway struct {
	mu          sync.Mutex
	placed      []models.Order
	nextID      int
	failKind    map[models.OrderKind]error
	statuses    map[string][]string
	statusFails map[string]int
	statusCalls map[string]int
	cancelErr   map[string]error
	cancelled   []string
	ltp         float64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failKind:    map[models.OrderKind]error{},
		statuses:    map[string][]string{},
		statusFails: map[string]int{},
		statusCalls: map[string]int{},
		cancelErr:   map[string]error{},
		ltp:         100,
	}
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, order models.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failKind[order.Kind]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("ORD-%d", f.nextID)
	order.ID = id
	f.placed = append(f.placed, order)
	return id, nil
}

func (f *fakeGateway) OrderStatus(ctx context.Context, orderID string) (broker.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[orderID]++
	if f.statusFails[orderID] > 0 {
		f.statusFails[orderID]--
		return broker.StatusReport{}, errors.New("no status data")
	}
	seq := f.statuses[orderID]
	if len(seq) == 0 {
		return broker.StatusReport{OrderID: orderID, Status: "OPEN"}, nil
	}
	status := seq[0]
	if len(seq) > 1 {
		f.statuses[orderID] = seq[1:]
	}
	return broker.StatusReport{OrderID: orderID, Status: status}, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cancelErr[orderID]; err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeGateway) LastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ltp, nil
}

func (f *fakeGateway) placedOrders() []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.placed...)
}

func (f *fakeGateway) cancelledOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeGateway) callsFor(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[orderID]
}

func (f *fakeGateway) setStatuses(orderID string, sequence ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderID] = sequence
}

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			ExchangeSegment: "nse_cm",
			Product:         "CNC",
			Validity:        "DAY",
			PollInterval:    5 * time.Millisecond,
			SettleDelay:     time.Millisecond,
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "fatal"})
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *Executor) monitorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.monitors)
}

func (e *Executor) lockCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tradeLocks)
}

func TestExecute_PlacesBracketLegs(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if trade == nil {
		t.Fatal("expected a trade")
	}
	defer exec.CancelTradeOrders(trade.ID)

	if len(result.OrderIDs) != 3 {
		t.Fatalf("expected 3 order ids, got %d", len(result.OrderIDs))
	}

	placed := gw.placedOrders()
	if len(placed) != 3 {
		t.Fatalf("expected 3 placed legs, got %d", len(placed))
	}

	entry, stop, target := placed[0], placed[1], placed[2]
	if entry.Kind != models.OrderKindMarket || entry.Side != models.OrderSideBuy || entry.Quantity != 10 {
		t.Errorf("unexpected entry leg: %+v", entry)
	}
	if stop.Kind != models.OrderKindStopLoss || stop.Side != models.OrderSideSell || stop.TriggerPrice != 95 {
		t.Errorf("unexpected stop leg: %+v", stop)
	}
	if target.Kind != models.OrderKindTarget || target.Side != models.OrderSideSell || target.TriggerPrice != 110 {
		t.Errorf("unexpected target leg: %+v", target)
	}
}

func TestExecute_SellBracketMirrored(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideSell, 5, 200, 4, 8)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	defer exec.CancelTradeOrders(trade.ID)

	placed := gw.placedOrders()
	if placed[1].TriggerPrice != 204 {
		t.Errorf("expected sell stop at 204, got %v", placed[1].TriggerPrice)
	}
	if placed[2].TriggerPrice != 192 {
		t.Errorf("expected sell target at 192, got %v", placed[2].TriggerPrice)
	}
	if placed[1].Side != models.OrderSideBuy || placed[2].Side != models.OrderSideBuy {
		t.Error("sell bracket exits must be BUY legs")
	}
}

func TestExecute_EntryFailureIsFailFast(t *testing.T) {
	gw := newFakeGateway()
	gw.failKind[models.OrderKindMarket] = errors.New("rejected")
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if result.Success {
		t.Fatal("expected failure")
	}
	if trade != nil {
		t.Fatal("no trade must be created on entry failure")
	}
	if len(gw.placedOrders()) != 0 {
		t.Errorf("no exit legs must be placed, got %d orders", len(gw.placedOrders()))
	}
	if exec.monitorCount() != 0 {
		t.Error("no monitor must be spawned on entry failure")
	}
}

func TestExecute_StopLegFailureLeavesEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.failKind[models.OrderKindStopLoss] = errors.New("rejected")
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, _ := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Message != "failed to place stop loss order" {
		t.Errorf("unexpected message: %s", result.Message)
	}
	// The accepted entry leg is reported back but not rolled back.
	if len(result.OrderIDs) != 1 {
		t.Errorf("expected the live entry id to be reported, got %v", result.OrderIDs)
	}
	if len(gw.cancelledOrders()) != 0 {
		t.Error("no rollback cancel must be attempted")
	}
}

func TestMonitor_StopLossWinCancelsTarget(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID, targetID := result.OrderIDs[1], result.OrderIDs[2]
	gw.setStatuses(stopID, "OPEN", "FILLED")

	waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })
	waitFor(t, time.Second, "monitor cleanup", func() bool { return exec.monitorCount() == 0 })

	cancelled := gw.cancelledOrders()
	if len(cancelled) != 1 || cancelled[0] != targetID {
		t.Errorf("expected only the target leg cancelled, got %v", cancelled)
	}
}

func TestMonitor_TargetWinCancelsStopLoss(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideSell, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID, targetID := result.OrderIDs[1], result.OrderIDs[2]
	gw.setStatuses(targetID, "COMPLETE")

	waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })

	cancelled := gw.cancelledOrders()
	if len(cancelled) != 1 || cancelled[0] != stopID {
		t.Errorf("expected only the stop leg cancelled, got %v", cancelled)
	}
}

func TestMonitor_TieBreakStopLossWins(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID, targetID := result.OrderIDs[1], result.OrderIDs[2]
	// Both legs report filled in the same poll iteration.
	gw.setStatuses(stopID, "FILLED")
	gw.setStatuses(targetID, "FILLED")

	waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })

	// The stop loss wins; the target is already terminal so no cancel
	// is attempted for either leg.
	if cancelled := gw.cancelledOrders(); len(cancelled) != 0 {
		t.Errorf("no cancel must be attempted when both legs are terminal, got %v", cancelled)
	}
	if trade.StopLossOrder.Status == models.OrderStatusCancelled {
		t.Error("stop loss leg must not be marked cancelled")
	}
}

func TestMonitor_CancelFailureStillResolves(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID, targetID := result.OrderIDs[1], result.OrderIDs[2]
	gw.mu.Lock()
	gw.cancelErr[targetID] = errors.New("cancel rejected")
	gw.mu.Unlock()
	gw.setStatuses(stopID, "FILLED")

	waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })
	waitFor(t, time.Second, "monitor cleanup", func() bool { return exec.monitorCount() == 0 })
}

func TestMonitor_TransientFaultsKeepPolling(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID := result.OrderIDs[1]
	gw.mu.Lock()
	gw.statusFails[stopID] = 3
	gw.statuses[stopID] = []string{"FILLED"}
	gw.mu.Unlock()

	waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })

	if calls := gw.callsFor(stopID); calls < 4 {
		t.Errorf("expected at least 4 status polls across the faults, got %d", calls)
	}
}

func TestMonitor_AbsentStatusNeverFatal(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	stopID := result.OrderIDs[1]
	gw.mu.Lock()
	gw.statusFails[stopID] = 1000
	gw.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	if !trade.IsActive() {
		t.Error("trade must stay active through transient faults")
	}
	if exec.monitorCount() != 1 {
		t.Error("monitor must keep running through transient faults")
	}
	exec.CancelTradeOrders(trade.ID)
}

func TestCancelTradeOrders_Idempotent(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	if !exec.CancelTradeOrders("unknown-id") {
		t.Error("cancelling an unknown id must be a no-op success")
	}

	result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 10, 100, 5, 10)
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Message)
	}
	if !exec.CancelTradeOrders(trade.ID) {
		t.Error("first cancel must succeed")
	}
	if !exec.CancelTradeOrders(trade.ID) {
		t.Error("second cancel must be a no-op success")
	}
	if exec.monitorCount() != 0 || exec.lockCount() != 0 {
		t.Error("tracking maps must be empty after cancel")
	}
}

func TestExecutor_ResourceReclamation(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(testConfig(), gw, testLogger(), nil)

	for i := 0; i < 5; i++ {
		result, trade := exec.Execute(context.Background(), "XYZ", models.OrderSideBuy, 1, 100, 5, 10)
		if !result.Success {
			t.Fatalf("trade %d: expected success, got: %s", i, result.Message)
		}
		gw.setStatuses(result.OrderIDs[1], "FILLED")
		waitFor(t, time.Second, "trade resolution", func() bool { return !trade.IsActive() })
	}

	waitFor(t, time.Second, "all monitors reclaimed", func() bool {
		return exec.monitorCount() == 0 && exec.lockCount() == 0
	})
}
