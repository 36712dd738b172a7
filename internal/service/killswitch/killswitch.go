package killswitch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"QuantPulse/internal/domain/repository"
	"QuantPulse/pkg/cache"
	applogger "QuantPulse/pkg/logger"
)

// Key is the shared flag read by every trading decision.
const Key = "system:trading_enabled"

// FlagStore is the subset of the cache service the switch needs.
// Satisfied by cache.Service.
type FlagStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RedisSwitch reads the trading flag from redis on every Check, no
// caching. The flag must fail open: an absent key or an unreachable
// store means trading stays enabled, so a redis outage cannot silently
// halt the system. Outages are logged loudly instead.
type RedisSwitch struct {
	store   FlagStore
	log     *applogger.Logger
	metrics repository.Metrics
}

var _ repository.Switch = (*RedisSwitch)(nil)

func NewRedisSwitch(store FlagStore, log *applogger.Logger, metrics repository.Metrics) *RedisSwitch {
	return &RedisSwitch{store: store, log: log, metrics: metrics}
}

func (s *RedisSwitch) Check(ctx context.Context) bool {
	var enabled bool
	err := s.store.Get(ctx, Key, &enabled)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		// flag never set: enabled
		return true
	case err != nil:
		s.log.Error("kill switch store unreachable, failing open", applogger.Error(err))
		if s.metrics != nil {
			s.metrics.RecordError("kill_switch_read")
		}
		return true
	}
	if s.metrics != nil {
		s.metrics.RecordTradingEnabled(enabled)
	}
	return enabled
}

func (s *RedisSwitch) Set(ctx context.Context, enabled bool) error {
	if err := s.store.Set(ctx, Key, enabled, 0); err != nil {
		return fmt.Errorf("kill switch set: %w", err)
	}
	s.log.Info("kill switch updated", applogger.Bool("trading_enabled", enabled))
	if s.metrics != nil {
		s.metrics.RecordTradingEnabled(enabled)
	}
	return nil
}

// MemorySwitch is an in-process switch for tests and single-node runs.
type MemorySwitch struct {
	mu      sync.RWMutex
	enabled bool
}

var _ repository.Switch = (*MemorySwitch)(nil)

func NewMemorySwitch(enabled bool) *MemorySwitch {
	return &MemorySwitch{enabled: enabled}
}

func (s *MemorySwitch) Check(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *MemorySwitch) Set(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	return nil
}
