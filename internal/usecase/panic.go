package usecase

import (
	"context"
	"errors"
	"fmt"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/execution"
	applogger "QuantPulse/pkg/logger"
)

// PanicUseCase is the emergency stop: disable trading, then flatten
// every open position. Flattening proceeds even if the flag write
// fails; getting out of the market matters more than the flag.
type PanicUseCase struct {
	killSw  domrepo.Switch
	gateway *execution.Gateway
	log     *applogger.Logger
}

func NewPanicUseCase(killSw domrepo.Switch, gateway *execution.Gateway, log *applogger.Logger) *PanicUseCase {
	return &PanicUseCase{killSw: killSw, gateway: gateway, log: log}
}

func (u *PanicUseCase) Execute(ctx context.Context) ([]models.Order, error) {
	u.log.Warn("panic triggered, disabling trading and flattening positions")

	var errs []error
	if err := u.killSw.Set(ctx, false); err != nil {
		u.log.Error("panic: kill switch write failed", applogger.Error(err))
		errs = append(errs, fmt.Errorf("disable trading: %w", err))
	}

	orders, err := u.gateway.CloseAll(ctx)
	if err != nil {
		u.log.Error("panic: flatten failed", applogger.Error(err))
		errs = append(errs, fmt.Errorf("flatten: %w", err))
	}
	u.log.Warn("panic complete", applogger.Int("orders", len(orders)))
	return orders, errors.Join(errs...)
}
