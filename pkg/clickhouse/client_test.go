package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
		not  []string
	}{
		{
			name: "native with timeouts",
			opts: Options{Addr: "ch:9000", Database: "marketpulse", User: "default", DialTimeout: 5 * time.Second, ReadTimeout: 30 * time.Second},
			want: []string{"clickhouse://default:@ch:9000/marketpulse?", "dial_timeout=5s", "read_timeout=30s"},
			not:  []string{"async_insert"},
		},
		{
			name: "http with async insert",
			opts: Options{Addr: "ch:8123", Database: "marketpulse", User: "u", Password: "p@ss", HTTP: true, AsyncInsert: true, WaitForAsync: true, MaxExecutionTime: time.Minute},
			want: []string{"http://u:p%40ss@ch:8123/marketpulse", "async_insert=1", "wait_for_async_insert=1", "max_execution_time=60"},
		},
		{
			name: "wait ignored without async",
			opts: Options{Addr: "ch:9000", Database: "db", WaitForAsync: true},
			not:  []string{"wait_for_async_insert"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.opts.DSN()
			for _, w := range tt.want {
				if !strings.Contains(dsn, w) {
					t.Errorf("dsn %q missing %q", dsn, w)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(dsn, n) {
					t.Errorf("dsn %q should not contain %q", dsn, n)
				}
			}
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	got := Options{Addr: "ch:9000", MaxOpenConns: 8, MaxIdleConns: 20}.withDefaults()
	if got.Database != "default" || got.User != "default" {
		t.Errorf("identity = %s/%s", got.User, got.Database)
	}
	if got.DialTimeout != 5*time.Second || got.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("timeouts = %v, %v", got.DialTimeout, got.ConnMaxLifetime)
	}
	if got.MaxOpenConns != 8 || got.MaxIdleConns != 4 {
		t.Errorf("pool = %d/%d, idle should be capped below open", got.MaxOpenConns, got.MaxIdleConns)
	}
}

func TestSampleSchemaTargetsDatabase(t *testing.T) {
	stmts := SampleSchema("marketpulse", "samples")
	if len(stmts) != 2 || !strings.Contains(stmts[1], "marketpulse.samples") || !strings.Contains(stmts[1], "ORDER BY (asset, ts)") {
		t.Fatalf("schema = %v", stmts)
	}
}

func TestNewClientRequiresAddr(t *testing.T) {
	if _, err := NewClient(t.Context(), Options{}); err == nil {
		t.Fatal("expected error without addr")
	}
}
