package analytics

import (
	"context"
	"fmt"

	domsvc "QuantPulse/internal/domain/service"
	"QuantPulse/pkg/config"
)

// HTTPNetflowSource fetches recent exchange netflow observations from
// the on-chain data service.
type HTTPNetflowSource struct{ base *HTTPServiceBase }

func NewHTTPNetflowSource(cfg *config.Config) *HTTPNetflowSource {
	return &HTTPNetflowSource{base: NewHTTPServiceBase(cfg.Analytics.NetflowServiceURL, cfg.Analytics.Timeout)}
}

type netflowReq struct {
	Symbol string `json:"symbol"`
	N      int    `json:"n"`
}

type netflowResp struct {
	Netflows []float64 `json:"netflows"`
}

func (s *HTTPNetflowSource) RecentNetflows(ctx context.Context, symbol string, n int) ([]float64, error) {
	var nr netflowResp
	err := s.base.PostJSON(ctx, "/netflow/recent", netflowReq{Symbol: symbol, N: n}, &nr)
	if err != nil {
		return nil, fmt.Errorf("post netflow: %w", err)
	}
	return nr.Netflows, nil
}

var _ domsvc.NetflowSource = (*HTTPNetflowSource)(nil)
