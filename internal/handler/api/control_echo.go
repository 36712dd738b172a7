package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/scheduler"
	icache "QuantPulse/internal/service/cache"
	svcmetrics "QuantPulse/internal/service/metrics"
	"QuantPulse/internal/service/ratelimit"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	xhttp "QuantPulse/pkg/http"
	xlogger "QuantPulse/pkg/logger"
)

const scoreCacheTTL = 10 * time.Second

// PortfolioSource exposes the paper ledger to the API. Nil in live mode.
type PortfolioSource interface {
	Portfolio(ctx context.Context) (models.Portfolio, error)
	Orders(limit int) []models.Order
}

// ControlHandler is the operator surface: flip the kill switch, trigger
// the panic path, fire jobs by hand, and inspect scores and the ledger.
type ControlHandler struct {
	logger    *xlogger.Logger
	killSw    domrepo.Switch
	panicUC   *usecase.PanicUseCase
	sched     *scheduler.Scheduler
	store     domrepo.CandleStore
	scorer    *analytics.Scorer
	portfolio PortfolioSource
	cache     icache.BytesCache
	rl        *ratelimit.Limiter
}

func NewControlHandler(
	logger *xlogger.Logger,
	killSw domrepo.Switch,
	panicUC *usecase.PanicUseCase,
	sched *scheduler.Scheduler,
	store domrepo.CandleStore,
	scorer *analytics.Scorer,
	portfolio PortfolioSource,
	bytesCache icache.BytesCache,
) *ControlHandler {
	svcmetrics.Register()
	return &ControlHandler{
		logger:    logger,
		killSw:    killSw,
		panicUC:   panicUC,
		sched:     sched,
		store:     store,
		scorer:    scorer,
		portfolio: portfolio,
		cache:     bytesCache,
		rl:        ratelimit.New(),
	}
}

func (h *ControlHandler) RegisterRoutes(e *echo.Echo) {
	ctl := e.Group("/control")
	ctl.POST("/start", h.Start)
	ctl.POST("/stop", h.Stop)
	ctl.POST("/panic", h.Panic)
	ctl.GET("/status", h.Status)
	ctl.POST("/jobs/:name/run", h.RunJob)

	g := e.Group("/api")
	g.GET("/score", h.Score)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/orders", h.Orders)
}

func (h *ControlHandler) Start(c echo.Context) error {
	if err := h.killSw.Set(c.Request().Context(), true); err != nil {
		h.logger.Error("control start failed", xlogger.Error(err))
		svcmetrics.APIErrors.WithLabelValues("start").Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]bool{"trading_enabled": true})
}

func (h *ControlHandler) Stop(c echo.Context) error {
	if err := h.killSw.Set(c.Request().Context(), false); err != nil {
		h.logger.Error("control stop failed", xlogger.Error(err))
		svcmetrics.APIErrors.WithLabelValues("stop").Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]bool{"trading_enabled": false})
}

func (h *ControlHandler) Panic(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("panic").Observe(time.Since(start).Seconds()) }()

	orders, err := h.panicUC.Execute(c.Request().Context())
	if err != nil {
		// report orders that did go through alongside the error
		h.logger.Error("control panic finished with errors", xlogger.Error(err))
		svcmetrics.APIErrors.WithLabelValues("panic").Inc()
		return xhttp.DataResponse(c, http.StatusInternalServerError, map[string]interface{}{
			"orders": orders,
			"error":  err.Error(),
		})
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"orders": orders})
}

func (h *ControlHandler) Status(c echo.Context) error {
	status := map[string]interface{}{
		"trading_enabled": h.killSw.Check(c.Request().Context()),
		"jobs":            h.sched.Jobs(),
	}
	if h.portfolio != nil {
		if p, err := h.portfolio.Portfolio(c.Request().Context()); err == nil {
			status["portfolio"] = p
		}
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *ControlHandler) RunJob(c echo.Context) error {
	req := &models.RunJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sched.RunJob(c.Request().Context(), req.Name); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			return xhttp.NotFoundResponse(c, err.Error())
		case errors.Is(err, scheduler.ErrOverlapSkipped):
			return xhttp.DataResponse(c, http.StatusConflict, err.Error())
		default:
			h.logger.Error("manual job run failed",
				xlogger.String("job", req.Name), xlogger.Error(err))
			svcmetrics.APIErrors.WithLabelValues("run_job").Inc()
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"job": req.Name, "result": "fired"})
}

func (h *ControlHandler) Score(c echo.Context) error {
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues("score").Observe(time.Since(start).Seconds()) }()

	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":score", 5, 2) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	cacheKey := "score:" + req.Symbol + ":" + string(tf)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			var cached models.CompositeScore
			if jerr := json.Unmarshal(b, &cached); jerr == nil {
				return xhttp.SuccessResponse(c, cached)
			}
		}
	}

	ctx := c.Request().Context()
	candles, err := h.store.GetLatestN(ctx, req.Symbol, req.N, tf)
	if err != nil {
		h.logger.Error("score candles load failed",
			xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		svcmetrics.APIErrors.WithLabelValues("score").Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	score := h.scorer.Score(ctx, req.Symbol, candles)

	if h.cache != nil {
		if b, jerr := json.Marshal(score); jerr == nil {
			if cerr := h.cache.SetBytes(cacheKey, b, scoreCacheTTL); cerr != nil {
				h.logger.Warn("score cache set failed", xlogger.Error(cerr))
			}
		}
	}
	return xhttp.SuccessResponse(c, score)
}

func (h *ControlHandler) Portfolio(c echo.Context) error {
	if h.portfolio == nil {
		return xhttp.NotFoundResponse(c, "portfolio is only available in paper mode")
	}
	p, err := h.portfolio.Portfolio(c.Request().Context())
	if err != nil {
		h.logger.Error("portfolio read failed", xlogger.Error(err))
		svcmetrics.APIErrors.WithLabelValues("portfolio").Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *ControlHandler) Orders(c echo.Context) error {
	if h.portfolio == nil {
		return xhttp.NotFoundResponse(c, "order history is only available in paper mode")
	}
	req := &models.OrdersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.portfolio.Orders(req.Limit))
}
