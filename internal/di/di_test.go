package di

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"MarketPulse/pkg/config"
)

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	raw := `
log:
  level: error
server:
  port: 38471
engine:
  assets: [KAITO]
  reference_assets: [SOL]
content:
  enabled: true
  service_url: http://127.0.0.1:1
` + extra
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestInitializeAppInMemory(t *testing.T) {
	app, cleanup, err := InitializeApp(testConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}
	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	app.Shutdown(stopCtx)
}

func TestInitializeAppSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")
	_, cleanup, err := InitializeApp(testConfig(t, "storage:\n  backend: sqlite\n  sqlite:\n    path: "+path+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	cleanup()
}

func TestInitializeAppUnreachableRedis(t *testing.T) {
	_, _, err := InitializeApp(testConfig(t, "redis:\n  enabled: true\n  addr: 127.0.0.1:1\n"))
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err = %v, want redis failure", err)
	}
}
