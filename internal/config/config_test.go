package config

import (
	"strings"
	"testing"

	"crossarb/pkg/crypto"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXCHANGES", "okx,htx")
	t.Setenv("OKX_API_KEY", "key-okx")
	t.Setenv("OKX_SECRET", "secret-okx")
	t.Setenv("OKX_PASSWORD", "pass-okx")
	t.Setenv("HTX_API_KEY", "key-htx")
	t.Setenv("HTX_SECRET", "secret-htx")
}

func TestLoadMinimal(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(cfg.Exchanges) != 2 {
		t.Fatalf("exchanges = %d, want 2", len(cfg.Exchanges))
	}
	okx := cfg.Exchanges["okx"]
	if okx.APIKey != "key-okx" || okx.Secret != "secret-okx" || okx.Password != "pass-okx" {
		t.Errorf("okx credentials = %+v", okx)
	}
	if !okx.EnableRateLimit {
		t.Error("rate limit must default to enabled")
	}
	if cfg.Engine.ProbeAddr != "1.1.1.1:53" {
		t.Errorf("probe addr = %q", cfg.Engine.ProbeAddr)
	}
	if cfg.Database.Enabled {
		t.Error("database must default to disabled")
	}
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("HTX_API_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "HTX_API_KEY") {
		t.Fatalf("err = %v, want missing HTX_API_KEY", err)
	}
}

func TestLoadFailsWithSingleExchange(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("EXCHANGES", "okx")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "at least 2 exchanges") {
		t.Fatalf("err = %v, want exchange count error", err)
	}
}

func TestLoadSealedCredentials(t *testing.T) {
	setMinimalEnv(t)

	key := "0123456789abcdef0123456789abcdef"
	sealed, err := crypto.EncryptWithKeyString("very-secret", key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	t.Setenv("ENCRYPTION_KEY", key)
	t.Setenv("OKX_SECRET", "")
	t.Setenv("OKX_SECRET_ENC", sealed)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Exchanges["okx"].Secret; got != "very-secret" {
		t.Errorf("unsealed secret = %q, want %q", got, "very-secret")
	}
}

func TestLoadSealedWithoutKeyFails(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("OKX_SECRET_ENC", "AAAA")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ENCRYPTION_KEY") {
		t.Fatalf("err = %v, want missing ENCRYPTION_KEY", err)
	}
}

func TestLoadBadEncryptionKeyLength(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("ENCRYPTION_KEY", "short")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("err = %v, want key length error", err)
	}
}

func TestParseProcedureTimes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]float64
		wantErr bool
	}{
		{name: "empty", raw: "", want: map[string]float64{}},
		{
			name: "two routes",
			raw:  "okx->htx=1800, htx->okx=2400",
			want: map[string]float64{"okx->htx": 1800, "htx->okx": 2400},
		},
		{name: "missing value", raw: "okx->htx", wantErr: true},
		{name: "negative", raw: "okx->htx=-5", wantErr: true},
		{name: "not a number", raw: "okx->htx=soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProcedureTimes(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("route %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestDatabaseRequiresPassword(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("DB_ENABLED", "true")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("err = %v, want DB_PASSWORD error", err)
	}

	t.Setenv("DB_PASSWORD", "pg-pass")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !strings.Contains(cfg.Database.DSN(), "password=pg-pass") {
		t.Error("DSN must carry the password")
	}
	if strings.Contains(cfg.Database.DSNWithoutPassword(), "pg-pass") {
		t.Error("DSNWithoutPassword must not leak the password")
	}
}

func TestBadProbeAddr(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("PROBE_ADDR", "no-port")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PROBE_ADDR") {
		t.Fatalf("err = %v, want PROBE_ADDR error", err)
	}
}
