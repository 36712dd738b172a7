package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	pkgch "QuantPulse/pkg/clickhouse"
)

var scoreSchema = []string{
	`CREATE DATABASE IF NOT EXISTS quantpulse`,
	`CREATE TABLE IF NOT EXISTS quantpulse.scores (
        symbol     LowCardinality(String),
        ts         DateTime('UTC'),
        value      Float64,
        degraded   UInt8,
        components String
    ) ENGINE = MergeTree
    ORDER BY (symbol, ts)`,
}

// CHScoreStore keeps composite score history in ClickHouse for audit.
type CHScoreStore struct {
	client *pkgch.Client
}

var _ domrepo.ScoreStore = (*CHScoreStore)(nil)

func NewCHScoreStore(ch *pkgch.Client) *CHScoreStore {
	return &CHScoreStore{client: ch}
}

func (s *CHScoreStore) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, scoreSchema); err != nil {
		return fmt.Errorf("score schema: %w", err)
	}
	return nil
}

func (s *CHScoreStore) Insert(ctx context.Context, sc models.CompositeScore) error {
	components, err := json.Marshal(sc.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	degraded := uint8(0)
	if sc.Degraded {
		degraded = 1
	}
	const q = `INSERT INTO quantpulse.scores (symbol, ts, value, degraded, components) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.client.DB().ExecContext(ctx, q,
		sc.Symbol, sc.Timestamp, sc.Value, degraded, string(components)); err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}
