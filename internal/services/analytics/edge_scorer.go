package analytics

import (
	"context"
	"fmt"
	"time"

	"QuantPulse/internal/domain/models"
	domsvc "QuantPulse/internal/domain/service"
	"QuantPulse/pkg/config"
)

// HTTPEdgeScorer asks the model service for a directional probability.
type HTTPEdgeScorer struct{ base *HTTPServiceBase }

func NewHTTPEdgeScorer(cfg *config.Config) *HTTPEdgeScorer {
	return &HTTPEdgeScorer{base: NewHTTPServiceBase(cfg.Analytics.EdgeServiceURL, cfg.Analytics.Timeout)}
}

type edgeReq struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	Horizon  string             `json:"horizon"`
}

type edgeResp struct {
	ProbaUp float64 `json:"proba_up"`
	Sigma   float64 `json:"sigma"`
}

func (s *HTTPEdgeScorer) Predict(ctx context.Context, symbol string, features map[string]float64, horizon string) (models.EdgeScore, error) {
	var result models.EdgeScore
	var er edgeResp
	err := s.base.PostJSON(ctx, "/edge/predict", edgeReq{Symbol: symbol, Features: features, Horizon: horizon}, &er)
	if err != nil {
		return result, fmt.Errorf("post edge: %w", err)
	}
	result.Symbol = symbol
	result.Timestamp = time.Now().UTC()
	result.Horizon = horizon
	result.ProbaUp = er.ProbaUp
	result.Sigma = er.Sigma
	return result, nil
}

var _ domsvc.EdgeScorer = (*HTTPEdgeScorer)(nil)
