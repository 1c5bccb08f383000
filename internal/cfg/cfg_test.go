package cfg

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet and parses args.
func newTestConfig(t *testing.T, args []string) (App, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c, fs
}

// validConfig is the defaults plus the settings that have no default.
func validConfig(t *testing.T) App {
	t.Helper()
	c, _ := newTestConfig(t, []string{
		"-s3-bucket", "clips",
		"-auth-username", "owner",
		"-auth-password", "hunter2",
		"-jwt-secret", "ssm:/clipboard/jwt",
	})
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c, _ := newTestConfig(t, nil)

	if !c.LogJSON || c.LogLevel != "info" {
		t.Errorf("logging defaults: json=%v level=%q", c.LogJSON, c.LogLevel)
	}
	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports: %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.DrainDelay != 10*time.Second {
		t.Errorf("DrainDelay: %s", c.DrainDelay)
	}
	if c.KVBackend != "pebble" || c.BlobBackend != "s3" {
		t.Errorf("backends: %q/%q", c.KVBackend, c.BlobBackend)
	}
	if c.SessionTTL != 8760*time.Hour {
		t.Errorf("SessionTTL: %s", c.SessionTTL)
	}
	if !c.CookieSecure {
		t.Error("CookieSecure: want true")
	}
	if c.MaxUploadBytes != 100<<20 {
		t.Errorf("MaxUploadBytes: %d", c.MaxUploadBytes)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Defaults_MissingRequired(t *testing.T) {
	c, _ := newTestConfig(t, nil)
	err := Validate(c)
	wantErrContains(t, err, "S3_BUCKET required")
	wantErrContains(t, err, "AUTH_USERNAME is required")
	wantErrContains(t, err, "AUTH_PASSWORD is required")
	wantErrContains(t, err, "JWT_SECRET is required")
}

func TestValidate_Cases(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*App)
		want string
	}{
		{"port zero", func(c *App) { c.HTTPPort = 0 }, "invalid HTTP_PORT"},
		{"same ports", func(c *App) { c.AdminPort = c.HTTPPort }, "must differ"},
		{"bad level", func(c *App) { c.LogLevel = "loud" }, "invalid LOG_LEVEL"},
		{"bad trace sample", func(c *App) { c.TraceSample = 1.5 }, "TRACE_SAMPLE"},
		{"tracing without endpoint", func(c *App) { c.EnableTracing = true }, "OTLP_ENDPOINT"},
		{"pyroscope without server", func(c *App) { c.EnablePyroscope = true }, "PYRO_SERVER"},
		{"unknown kv", func(c *App) { c.KVBackend = "etcd" }, "invalid KV_BACKEND"},
		{"redis without url", func(c *App) { c.KVBackend = "redis"; c.RedisURL = "" }, "REDIS_URL"},
		{"unknown blob", func(c *App) { c.BlobBackend = "gcs" }, "invalid BLOB_BACKEND"},
		{"bad s3 endpoint", func(c *App) { c.S3Endpoint = "minio:9000" }, "S3_ENDPOINT"},
		{"half static creds", func(c *App) { c.S3AccessKeyID = "AKIA" }, "must be set together"},
		{"zero ttl", func(c *App) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"blank issuer", func(c *App) { c.JWTIssuer = " " }, "JWT_ISSUER"},
		{"zero upload", func(c *App) { c.MaxUploadBytes = 0 }, "MAX_UPLOAD_BYTES"},
		{"zero burst", func(c *App) { c.RateLimitBurst = 0 }, "RATE_LIMIT_BURST"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig(t)
			tc.mut(&c)
			wantErrContains(t, Validate(c), tc.want)
		})
	}
}

func TestValidate_MemoryBackendsNeedNoStorageSettings(t *testing.T) {
	c := validConfig(t)
	c.KVBackend, c.BlobBackend, c.S3Bucket, c.PebblePath = "memory", "memory", "", ""
	if err := Validate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFillFromEnv_Precedence(t *testing.T) {
	t.Setenv("CLIPBOARD_HTTP_PORT", "8181")
	t.Setenv("CLIPBOARD_LOG_LEVEL", "debug")

	c, fs := newTestConfig(t, []string{"-log-level", "warn"})
	var msgs []string
	FillFromEnv(fs, EnvPrefix, func(f string, a ...any) { msgs = append(msgs, f) })

	if c.HTTPPort != 8181 {
		t.Errorf("HTTPPort: env should apply, got %d", c.HTTPPort)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel: cli should win, got %q", c.LogLevel)
	}
	if len(msgs) != 1 {
		t.Errorf("expected one override message, got %v", msgs)
	}
}

func TestFillFromEnv_InvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("CLIPBOARD_SESSION_TTL", "forever")

	c, fs := newTestConfig(t, nil)
	FillFromEnv(fs, EnvPrefix, nil)

	if c.SessionTTL != 8760*time.Hour {
		t.Fatalf("SessionTTL should keep default, got %s", c.SessionTTL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipboard.env")
	if err := os.WriteFile(path, []byte("CLIPBOARD_TEST_FROM_FILE=owner\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CLIPBOARD_TEST_FROM_FILE") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("CLIPBOARD_TEST_FROM_FILE"); got != "owner" {
		t.Fatalf("env not loaded, got %q", got)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
	wantErrContains(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")), "load env file")
}

func TestEnvFileFromArgs(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"-env-file", "a.env"}, "a.env"},
		{[]string{"--env-file=b.env", "-http-port", "1"}, "b.env"},
		{[]string{"-http-port", "1"}, ""},
	}
	for _, tc := range cases {
		if got := EnvFileFromArgs(tc.args); got != tc.want {
			t.Errorf("EnvFileFromArgs(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
