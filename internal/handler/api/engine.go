package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/services/content"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"
)

// CycleTrigger runs one detection cycle on demand.
type CycleTrigger interface {
	RunNow(ctx context.Context) (*models.CycleReport, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Option func(*EngineHandler)

func WithCycleTrigger(t CycleTrigger) Option {
	return func(h *EngineHandler) { h.cycles = t }
}

func WithGuard(g *content.Guard) Option {
	return func(h *EngineHandler) { h.guard = g }
}

// WithIngestLimiter throttles POST /api/samples per asset.
func WithIngestLimiter(l *ratelimit.Limiter) Option {
	return func(h *EngineHandler) { h.limiter = l }
}

// WithReadiness sets how many buffered samples mark an asset ready.
func WithReadiness(min int) Option {
	return func(h *EngineHandler) {
		if min > 0 {
			h.minReady = min
		}
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *EngineHandler) { h.checks[name] = check }
}

// EngineHandler exposes ingestion, inspection and manual cycle endpoints.
type EngineHandler struct {
	log      *applogger.Logger
	ingestor *usecase.SampleIngestor
	runner   *usecase.CycleRunner
	cycles   CycleTrigger
	guard    *content.Guard
	limiter  *ratelimit.Limiter
	minReady int
	checks   map[string]HealthCheck
	clock    func() time.Time
}

func NewEngineHandler(log *applogger.Logger, ingestor *usecase.SampleIngestor, runner *usecase.CycleRunner, opts ...Option) *EngineHandler {
	if log == nil {
		log = applogger.Nop()
	}
	h := &EngineHandler{
		log:      log,
		ingestor: ingestor,
		runner:   runner,
		minReady: 12,
		checks:   make(map[string]HealthCheck),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/samples", h.IngestSample)
	g.GET("/assets", h.Assets)
	g.GET("/assets/:asset/window", h.Window)
	g.POST("/cycles", h.RunCycle)
	g.GET("/cycles/last", h.LastCycle)
	g.GET("/cooldowns", h.Cooldowns)
	g.POST("/content/check", h.CheckContent)
}

func (h *EngineHandler) IngestSample(c echo.Context) error {
	req := &models.IngestSampleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts, ok := util.ParseTime(req.Timestamp)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("timestamp must be RFC3339 or unix seconds").WithParam("timestamp", req.Timestamp))
	}
	if h.limiter != nil && !h.limiter.Allow(req.Asset) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError(req.Asset))
	}

	s := models.Sample{AssetID: req.Asset, Timestamp: ts, Price: req.Price, Volume: req.Volume}
	err := h.ingestor.Ingest(c.Request().Context(), s)
	switch {
	case err == nil:
		return xhttp.AcceptedResponse(c, s)
	case errors.Is(err, models.ErrOutOfOrderSample):
		return xhttp.AppErrorResponse(c, xhttp.OutOfOrderError(err.Error()).WithError(err))
	case errors.Is(err, models.ErrInvalidSample):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	default:
		h.log.Error("ingest sample", applogger.String("asset", req.Asset), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

func (h *EngineHandler) Assets(c echo.Context) error {
	reg := h.ingestor.Registry()
	assets := reg.Assets()
	rows := make([]models.AssetStatus, 0, len(assets))
	for _, a := range assets {
		buf, ok := reg.Buffer(a)
		if !ok {
			continue
		}
		rows = append(rows, models.AssetStatus{Asset: a, Length: buf.Len(), Ready: buf.IsReady(h.minReady)})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *EngineHandler) Window(c echo.Context) error {
	req := &models.WindowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	buf, ok := h.ingestor.Registry().Buffer(req.Asset)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("asset %s is not tracked", req.Asset))
	}
	rows := buf.Window(req.N)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *EngineHandler) RunCycle(c echo.Context) error {
	if h.cycles == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("manual cycles are disabled"))
	}
	report, err := h.cycles.RunNow(c.Request().Context())
	if err != nil {
		h.log.Error("manual cycle", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("cycle failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *EngineHandler) LastCycle(c echo.Context) error {
	report := h.runner.LastReport()
	if report == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no cycle has completed yet"))
	}
	return xhttp.SuccessResponse(c, report)
}

type cooldownView struct {
	Asset     string            `json:"asset"`
	Kind      models.SignalKind `json:"kind"`
	LastFired time.Time         `json:"last_fired"`
}

func (h *EngineHandler) Cooldowns(c echo.Context) error {
	req := &models.CooldownRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stamps := h.runner.Cooldowns(req.Asset)
	rows := make([]cooldownView, 0, len(stamps))
	for k, at := range stamps {
		rows = append(rows, cooldownView{Asset: k.AssetID, Kind: k.Kind, LastFired: at})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Kind < rows[j].Kind })
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// CheckContent runs the similarity guard without recording the text.
func (h *EngineHandler) CheckContent(c echo.Context) error {
	if h.guard == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("content guard is disabled"))
	}
	req := &models.ContentCheckRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.guard.Check(req.Text, h.clock()))
}

func (h *EngineHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

var _ xhttp.Handler = (*EngineHandler)(nil)
