package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("base defaults unexpected: %+v", cfg)
	}
	if cfg.LocalStoreURL != "sqlite://wedding_invitation_cache.db" || cfg.RemoteDriver != "sqlite" || cfg.RemoteDSN != "remote.db" {
		t.Fatalf("store defaults unexpected: %+v", cfg)
	}
	if cfg.SyncInterval != 30*time.Second || cfg.RemoteTimeout != 5*time.Second || cfg.SnapshotInterval != 2*time.Second {
		t.Fatalf("sync defaults unexpected: %+v", cfg)
	}
	if cfg.AdminUser != "" {
		t.Fatalf("admin should be disabled by default, got %q", cfg.AdminUser)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("idempotency ttl default = %v", cfg.IdempotencyTTL)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	vars := map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "3s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "warning",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "wedding/v2/",
		"LOCAL_STORE_URL":             "kvdb:///var/lib/invites/cache.bolt",
		"REMOTE_DRIVER":               "PostgreSQL",
		"REMOTE_DSN":                  "host=db user=app dbname=invites",
		"SYNC_INTERVAL":               "1m",
		"REMOTE_TIMEOUT":              "750ms",
		"SNAPSHOT_INTERVAL":           "bogus",
		"ADMIN_USER":                  "planner",
		"ADMIN_PASSWORD":              "s3cret",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"CORS_ALLOWED_ORIGINS":        " https://invite.example , , http://localhost:5173 ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, "8088"},
		{"read timeout", cfg.ReadTimeout, 2 * time.Second},
		{"write timeout", cfg.WriteTimeout, 3 * time.Second},
		{"max header bytes", cfg.MaxHeaderBytes, 8192},
		{"gin mode falls back", cfg.GinMode, "release"},
		{"warning is warn", cfg.LogLevel, "warn"},
		{"pretty", cfg.LogPretty, true},
		{"swagger", cfg.SwaggerEnabled, true},
		{"base path normalized", cfg.APIBasePath, "/wedding/v2"},
		{"local store", cfg.LocalStoreURL, "kvdb:///var/lib/invites/cache.bolt"},
		{"postgresql is postgres", cfg.RemoteDriver, "postgres"},
		{"dsn", cfg.RemoteDSN, "host=db user=app dbname=invites"},
		{"sync interval", cfg.SyncInterval, time.Minute},
		{"remote timeout", cfg.RemoteTimeout, 750 * time.Millisecond},
		{"bad snapshot interval keeps default", cfg.SnapshotInterval, 2 * time.Second},
		{"admin user", cfg.AdminUser, "planner"},
		{"bad rps keeps default", cfg.RateRPS, 5.0},
		{"bad burst keeps default", cfg.RateBurst, 10},
		{"cors", cfg.CORS.AllowedOrigins, []string{"https://invite.example", "http://localhost:5173"}},
		{"hsts", cfg.Security, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}},
		{"idempotency ttl", cfg.IdempotencyTTL, 48 * time.Hour},
		{"otel", cfg.OTEL, OTELConfig{Enabled: true, Endpoint: "otel:4317", ServiceName: "wedding-invite-backend", SampleRatio: 0.75}},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %#v; want %#v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"zero header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank local store", map[string]string{"LOCAL_STORE_URL": "   "}, "LOCAL_STORE_URL must not be empty"},
		{"unknown remote driver", map[string]string{"REMOTE_DRIVER": "mongo"}, "REMOTE_DRIVER"},
		{"blank dsn", map[string]string{"REMOTE_DSN": "  "}, "REMOTE_DSN"},
		{"negative sync interval", map[string]string{"SYNC_INTERVAL": "-5s"}, "SYNC_INTERVAL"},
		{"admin without password", map[string]string{"ADMIN_USER": "planner", "ADMIN_PASSWORD": ""}, "ADMIN_PASSWORD"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"negative hsts age", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"zero idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio above one", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v; want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMustLoad(t *testing.T) {
	if cfg := MustLoad(); cfg.APIBasePath == "" {
		t.Fatalf("MustLoad returned an empty config")
	}

	t.Setenv("REMOTE_DRIVER", "oracle")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestEnvParsers(t *testing.T) {
	t.Setenv("X_BLANK", "   ")
	t.Setenv("X_STR", " val ")
	t.Setenv("X_FLOAT", "0.25")
	t.Setenv("X_INT", " 42 ")
	t.Setenv("X_DUR", "150ms")
	t.Setenv("X_BAD", "nope")

	if env("X_UNSET", "d", text) != "d" || env("X_BLANK", 3, integer) != 3 {
		t.Fatalf("unset or unparsable must yield the default")
	}
	if env("X_BLANK", "d", text) != "   " {
		t.Fatalf("whitespace is a value for text")
	}
	if env("X_STR", "d", text) != " val " || env("X_STR", "d", lower) != "val" {
		t.Fatalf("text keeps the raw value, lower trims")
	}
	if env("X_FLOAT", 0.0, decimal) != 0.25 || env("X_BAD", 1.5, decimal) != 1.5 {
		t.Fatalf("decimal")
	}
	if env("X_INT", 0, integer) != 42 || env("X_BAD", 7, integer) != 7 {
		t.Fatalf("integer")
	}
	if env("X_DUR", time.Second, duration) != 150*time.Millisecond || env("X_BAD", 2*time.Second, duration) != 2*time.Second {
		t.Fatalf("duration")
	}

	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("X_BOOL", v)
		if !env("X_BOOL", false, boolean) {
			t.Errorf("boolean(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "Off"} {
		t.Setenv("X_BOOL", v)
		if env("X_BOOL", true, boolean) {
			t.Errorf("boolean(%q) = true", v)
		}
	}
	t.Setenv("X_BOOL", "maybe")
	if !env("X_BOOL", true, boolean) || env("X_BOOL", false, boolean) {
		t.Errorf("unknown booleans must keep the default")
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV(\"\") should be nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "//api/v2//": "/api/v2"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.LogLevel = "loud"
	cfg.LocalStoreURL = ""
	cfg.RateBurst = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"LOG_LEVEL", "LOCAL_STORE_URL", "RATE_BURST"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	cfg.LogLevel = "trace"
	cfg.LocalStoreURL = "kvdb://cache.bolt"
	cfg.RateBurst = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixed config still invalid: %v", err)
	}
}
