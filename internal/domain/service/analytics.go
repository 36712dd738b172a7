package service

import (
	"context"

	"QuantPulse/internal/domain/models"
)

// EdgeScorer predicts directional probability using features for a horizon.
// Buy signals are gated on its ProbaUp; sells never are.
type EdgeScorer interface {
	Predict(ctx context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error)
}

// NetflowSource provides recent exchange netflow observations used by
// the on-chain score adjustment.
type NetflowSource interface {
	RecentNetflows(ctx context.Context, symbol string, n int) ([]float64, error)
}
