package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/services/content"
	"MarketPulse/internal/services/series"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/metrics"
)

var now = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type listData[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}

type fixture struct {
	e      *echo.Echo
	h      *EngineHandler
	runner *usecase.CycleRunner
	agg    *usecase.SignalAggregator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := series.NewRegistry(16)
	ing := usecase.NewSampleIngestor(reg, nil, metrics.Nop{}, nil)
	agg := usecase.NewSignalAggregator(usecase.CooldownPolicy{Default: time.Hour}, metrics.Nop{})
	runner := usecase.NewCycleRunner(reg, nil, agg, []string{"KAITO"}, metrics.Nop{})
	h := NewEngineHandler(nil, ing, runner, opts...)
	h.clock = func() time.Time { return now }
	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, h: h, runner: runner, agg: agg}
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, env
}

func sampleBody(asset string, minute int) string {
	ts := now.Add(time.Duration(minute) * time.Minute).Format(time.RFC3339)
	return `{"asset":"` + asset + `","timestamp":"` + ts + `","price":1.25,"volume":400}`
}

func TestIngestSample(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"accepted", sampleBody("KAITO", 0), http.StatusAccepted, ""},
		{"replayed", sampleBody("KAITO", 0), http.StatusConflict, "ERR_OUT_OF_ORDER"},
		{"unix seconds", `{"asset":"KAITO","timestamp":"1741003300","price":1.3,"volume":1}`, http.StatusAccepted, ""},
		{"bad timestamp", `{"asset":"KAITO","timestamp":"yesterday","price":1,"volume":1}`, http.StatusBadRequest, "ERR_BAD_REQUEST"},
		{"missing asset", `{"timestamp":"1741003400","price":1,"volume":1}`, http.StatusBadRequest, "ERR_REQUIRED"},
		{"negative volume", `{"asset":"KAITO","timestamp":"1741003400","price":1,"volume":-2}`, http.StatusBadRequest, "ERR_GTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, http.MethodPost, "/api/samples", tt.body)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", code, tt.wantCode, env.Data)
			}
			if tt.wantErr != "" && !strings.Contains(string(env.Data), tt.wantErr) {
				t.Fatalf("data = %s, want %s", env.Data, tt.wantErr)
			}
		})
	}
}

func TestIngestRateLimitedPerAsset(t *testing.T) {
	lim := ratelimit.New(1, 1, ratelimit.WithClock(func() time.Time { return now }))
	f := newFixture(t, WithIngestLimiter(lim))

	if code, _ := f.do(t, http.MethodPost, "/api/samples", sampleBody("KAITO", 0)); code != http.StatusAccepted {
		t.Fatalf("first sample code = %d", code)
	}
	code, env := f.do(t, http.MethodPost, "/api/samples", sampleBody("KAITO", 1))
	if code != http.StatusTooManyRequests || !strings.Contains(string(env.Data), "ERR_RATE_LIMITED") {
		t.Fatalf("code = %d data = %s", code, env.Data)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/samples", sampleBody("SOL", 0)); code != http.StatusAccepted {
		t.Fatalf("other asset code = %d", code)
	}
}

func TestAssetsAndWindow(t *testing.T) {
	f := newFixture(t, WithReadiness(3))
	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/api/samples", sampleBody("KAITO", i))
	}
	f.do(t, http.MethodPost, "/api/samples", sampleBody("SOL", 0))

	code, env := f.do(t, http.MethodGet, "/api/assets", "")
	if code != http.StatusOK {
		t.Fatalf("assets code = %d", code)
	}
	var assets listData[models.AssetStatus]
	if err := json.Unmarshal(env.Data, &assets); err != nil {
		t.Fatal(err)
	}
	want := []models.AssetStatus{{Asset: "KAITO", Length: 3, Ready: true}, {Asset: "SOL", Length: 1, Ready: false}}
	if len(assets.Rows) != 2 || assets.Rows[0] != want[0] || assets.Rows[1] != want[1] {
		t.Fatalf("assets = %+v", assets.Rows)
	}

	code, env = f.do(t, http.MethodGet, "/api/assets/KAITO/window?n=2", "")
	var window listData[models.Sample]
	if err := json.Unmarshal(env.Data, &window); err != nil || code != http.StatusOK {
		t.Fatalf("code = %d err = %v", code, err)
	}
	if len(window.Rows) != 2 || !window.Rows[1].Timestamp.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("window = %+v", window.Rows)
	}

	if code, _ := f.do(t, http.MethodGet, "/api/assets/ETH/window", ""); code != http.StatusNotFound {
		t.Fatalf("unknown asset code = %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/api/assets/KAITO/window?n=0", ""); code != http.StatusBadRequest {
		t.Fatalf("n=0 code = %d", code)
	}
}

type stubTrigger struct {
	report *models.CycleReport
	err    error
	calls  int
}

func (s *stubTrigger) RunNow(context.Context) (*models.CycleReport, error) {
	s.calls++
	return s.report, s.err
}

func TestRunCycle(t *testing.T) {
	if code, _ := newFixture(t).do(t, http.MethodPost, "/api/cycles", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("without trigger code = %d", code)
	}

	trig := &stubTrigger{report: &models.CycleReport{Timestamp: now, Assets: map[string]*models.AssetOutcome{}}}
	f := newFixture(t, WithCycleTrigger(trig))
	if code, _ := f.do(t, http.MethodPost, "/api/cycles", ""); code != http.StatusOK || trig.calls != 1 {
		t.Fatalf("code = %d calls = %d", code, trig.calls)
	}
	trig.err = errors.New("store down")
	if code, _ := f.do(t, http.MethodPost, "/api/cycles", ""); code != http.StatusInternalServerError {
		t.Fatalf("failing cycle code = %d", code)
	}
}

func TestLastCycle(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(t, http.MethodGet, "/api/cycles/last", ""); code != http.StatusNotFound {
		t.Fatalf("before any cycle code = %d", code)
	}
	if _, err := f.runner.RunAt(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	code, env := f.do(t, http.MethodGet, "/api/cycles/last", "")
	var report models.CycleReport
	if err := json.Unmarshal(env.Data, &report); err != nil || code != http.StatusOK {
		t.Fatalf("code = %d err = %v", code, err)
	}
	if !report.Timestamp.Equal(now) || report.Assets["KAITO"] == nil {
		t.Fatalf("report = %+v", report)
	}
}

func TestCooldowns(t *testing.T) {
	f := newFixture(t)
	f.agg.Restore(map[models.CooldownKey]time.Time{
		{AssetID: "KAITO", Kind: models.KindVolumeClustering}: now.Add(-time.Minute),
		{AssetID: "KAITO", Kind: models.KindVolumeAnomaly}:    now.Add(-2 * time.Minute),
		{AssetID: "SOL", Kind: models.KindVolumeAnomaly}:      now,
	})

	if code, _ := f.do(t, http.MethodGet, "/api/cooldowns", ""); code != http.StatusBadRequest {
		t.Fatalf("missing asset code = %d", code)
	}
	code, env := f.do(t, http.MethodGet, "/api/cooldowns?asset=KAITO", "")
	var rows listData[cooldownView]
	if err := json.Unmarshal(env.Data, &rows); err != nil || code != http.StatusOK {
		t.Fatalf("code = %d err = %v", code, err)
	}
	if rows.Total != 2 || rows.Rows[0].Kind != models.KindVolumeAnomaly || rows.Rows[1].Kind != models.KindVolumeClustering {
		t.Fatalf("rows = %+v", rows.Rows)
	}
}

func TestCheckContentDoesNotRecord(t *testing.T) {
	g, err := content.NewGuard(content.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	text := "KAITO volume tripled overnight while price stayed flat near support"
	g.Seed([]models.PublishedContentRecord{{ID: "r1", Text: text, Timestamp: now.Add(-time.Hour)}})
	f := newFixture(t, WithGuard(g))

	code, env := f.do(t, http.MethodPost, "/api/content/check", `{"text":"`+text+`"}`)
	var d models.Decision
	if err := json.Unmarshal(env.Data, &d); err != nil || code != http.StatusOK {
		t.Fatalf("code = %d err = %v", code, err)
	}
	if d.Accepted || d.MatchedID != "r1" {
		t.Fatalf("decision = %+v", d)
	}

	f.do(t, http.MethodPost, "/api/content/check", `{"text":"SOL funding flipped negative across every major venue"}`)
	if n := len(g.Records()); n != 1 {
		t.Fatalf("records = %d, check must not record", n)
	}
	if code, _ := f.do(t, http.MethodPost, "/api/content/check", `{}`); code != http.StatusBadRequest {
		t.Fatalf("empty body code = %d", code)
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	f := newFixture(t, WithHealthCheck("store", ok))
	if code, _ := f.do(t, http.MethodGet, "/healthz", ""); code != http.StatusOK {
		t.Fatalf("healthy code = %d", code)
	}

	f = newFixture(t, WithHealthCheck("store", ok), WithHealthCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))
	code, env := f.do(t, http.MethodGet, "/healthz", "")
	if code != http.StatusServiceUnavailable || !strings.Contains(string(env.Data), "connection refused") {
		t.Fatalf("code = %d data = %s", code, env.Data)
	}
}
