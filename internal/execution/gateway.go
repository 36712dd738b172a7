package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	"QuantPulse/internal/risk"
	applogger "QuantPulse/pkg/logger"
)

// State is the position of an order in the submission pipeline.
type State string

const (
	StateReceived    State = "received"
	StateRiskChecked State = "risk_checked"
	StateSized       State = "sized"
	StateSubmitted   State = "submitted"
	StateFilled      State = "filled"
	StateRejected    State = "rejected"
)

// Decision is an approved signal handed to the gateway. For buys the
// gateway sizes the order from WinProb/Payoff with fractional Kelly;
// for sells SellQuantity names the quantity to close.
type Decision struct {
	Signal       models.Signal
	WinProb      float64
	Payoff       float64
	SellQuantity float64
}

// Gateway runs every order through the fixed state machine
// Received -> RiskChecked -> Sized -> Submitted -> Filled|Rejected.
// The kill switch is consulted twice: entering RiskChecked and again
// immediately before Submitted, so a flag flipped mid-pipeline still
// stops the order. Backend submission errors reject the order and are
// never retried.
type Gateway struct {
	backend  repository.ExchangeBackend
	killSw   repository.Switch
	sizer    *risk.Sizer
	notifier repository.Notifier
	metrics  repository.Metrics
	log      *applogger.Logger
}

func NewGateway(
	backend repository.ExchangeBackend,
	killSw repository.Switch,
	sizer *risk.Sizer,
	notifier repository.Notifier,
	metrics repository.Metrics,
	log *applogger.Logger,
) *Gateway {
	return &Gateway{
		backend:  backend,
		killSw:   killSw,
		sizer:    sizer,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
	}
}

// Submit routes one decision through the state machine. The returned
// order is terminal: filled or rejected with a reason. The error is
// non-nil only for malformed decisions.
func (g *Gateway) Submit(ctx context.Context, d Decision) (models.Order, error) {
	sig := d.Signal
	if sig.Action != models.ActionBuy && sig.Action != models.ActionSell {
		return models.Order{}, errors.New("gateway: only buy and sell signals are executable")
	}
	state := StateReceived
	g.logState(sig, state, "")

	// RiskChecked
	if !g.killSw.Check(ctx) {
		return g.reject(ctx, sig, 0, 0, models.ReasonKillSwitchActive), nil
	}
	state = StateRiskChecked
	g.logState(sig, state, "")

	// Sized
	price := sig.Price
	if price <= 0 {
		fetched, err := g.backend.FetchPrice(ctx, sig.Symbol)
		if err != nil {
			g.log.Error("gateway price lookup failed",
				applogger.String("symbol", sig.Symbol), applogger.Error(err))
			return g.reject(ctx, sig, 0, 0, models.ReasonBackendSubmission), nil
		}
		price = fetched
	}

	var quantity float64
	switch sig.Action {
	case models.ActionBuy:
		capital, err := g.backend.FetchBalance(ctx)
		if err != nil {
			g.log.Error("gateway balance lookup failed", applogger.Error(err))
			return g.reject(ctx, sig, 0, price, models.ReasonBackendSubmission), nil
		}
		quantity = g.sizer.Quantity(d.WinProb, d.Payoff, capital, price)
	case models.ActionSell:
		quantity = d.SellQuantity
	}
	if quantity <= 0 {
		return g.reject(ctx, sig, 0, price, models.ReasonZeroSize), nil
	}
	state = StateSized
	g.logState(sig, state, "")

	// the operator may have flipped the switch while we were sizing
	if !g.killSw.Check(ctx) {
		return g.reject(ctx, sig, quantity, price, models.ReasonKillSwitchActive), nil
	}

	// Submitted
	state = StateSubmitted
	g.logState(sig, state, "")
	side := models.SideBuy
	if sig.Action == models.ActionSell {
		side = models.SideSell
	}
	order, err := g.backend.CreateOrder(ctx, sig.Symbol, side, quantity, price)
	if err != nil {
		reason := models.ReasonBackendSubmission
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrInsufficientHoldings) {
			reason = models.ReasonInsufficientFunds
		}
		g.log.Error("gateway submission failed",
			applogger.String("symbol", sig.Symbol),
			applogger.String("side", string(side)),
			applogger.Error(err))
		return g.reject(ctx, sig, quantity, price, reason), nil
	}

	g.logState(sig, StateFilled, "")
	g.publish(ctx, &order)
	return order, nil
}

// CloseAll flattens every position through the backend, bypassing
// sizing. Used by the panic path, so it runs regardless of the kill
// switch state.
func (g *Gateway) CloseAll(ctx context.Context) ([]models.Order, error) {
	orders, err := g.backend.CloseAllPositions(ctx)
	for i := range orders {
		g.publish(ctx, &orders[i])
	}
	return orders, err
}

func (g *Gateway) reject(ctx context.Context, sig models.Signal, quantity, price float64, reason string) models.Order {
	order := models.Order{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      models.OrderSide(sig.Action),
		Quantity:  quantity,
		Price:     price,
		Status:    models.OrderRejected,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	g.logState(sig, StateRejected, reason)
	g.publish(ctx, &order)
	return order
}

func (g *Gateway) publish(ctx context.Context, o *models.Order) {
	if g.metrics != nil {
		g.metrics.RecordOrder(string(o.Status), o.Reason)
	}
	if g.notifier == nil {
		return
	}
	if err := g.notifier.NotifyOrder(ctx, o); err != nil {
		g.log.Warn("order notification failed",
			applogger.String("order_id", o.ID), applogger.Error(err))
	}
}

func (g *Gateway) logState(sig models.Signal, state State, reason string) {
	fields := []applogger.Field{
		applogger.String("symbol", sig.Symbol),
		applogger.String("action", string(sig.Action)),
		applogger.String("state", string(state)),
	}
	if reason != "" {
		fields = append(fields, applogger.String("reason", reason))
	}
	g.log.Info("order state", fields...)
}
