package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ohowe1/clipboard/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names when reading the environment.
const EnvPrefix = "CLIPBOARD_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	EnablePprof bool
	DrainDelay  time.Duration

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	KVBackend  string
	PebblePath string
	RedisURL   string

	BlobBackend       string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3Region          string
	S3PathStyle       bool
	S3AccessKeyID     string
	S3SecretAccessKey string

	AuthUsername string
	AuthPassword string
	JWTSecret    string
	JWTIssuer    string
	SessionTTL   time.Duration
	CookieSecure bool

	MaxUploadBytes   int64
	TrustedProxyHops int
	RateLimitRPS     float64
	RateLimitBurst   int

	EnvFile string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.DurationVar(&c.DrainDelay, "drain-delay", 10*time.Second, "time to report not-ready before shutting down listeners")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.KVBackend, "kv-backend", "pebble", "metadata store: pebble|redis|memory")
	fs.StringVar(&c.PebblePath, "pebble-path", "data/clipboard.pebble", "pebble database directory")
	fs.StringVar(&c.RedisURL, "redis-url", "redis://localhost:6379/0", "redis connection url")

	fs.StringVar(&c.BlobBackend, "blob-backend", "s3", "file store: s3|memory")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket holding uploaded files")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "", "key prefix for uploaded files")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom s3 endpoint url (minio, r2)")
	fs.StringVar(&c.S3Region, "s3-region", "", "s3 region (defaults to the sdk chain)")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", false, "use path-style s3 addressing")
	fs.StringVar(&c.S3AccessKeyID, "s3-access-key-id", "", "static s3 access key id (defaults to the sdk chain)")
	fs.StringVar(&c.S3SecretAccessKey, "s3-secret-access-key", "", "static s3 secret key, secret reference")

	fs.StringVar(&c.AuthUsername, "auth-username", "", "login username")
	fs.StringVar(&c.AuthPassword, "auth-password", "", "login password or bcrypt hash, secret reference")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "session signing secret, secret reference")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", "clipboard", "session issuer and audience")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 8760*time.Hour, "session validity")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", true, "mark the session cookie Secure")

	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 100<<20, "largest accepted request body for file uploads")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "number of reverse proxies in front of the server")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client request rate (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client burst size")

	fs.StringVar(&c.EnvFile, "env-file", "", "dotenv file loaded before reading CLIPBOARD_* variables")
}

// LoadEnvFile loads a dotenv file into the process environment. Variables
// already set in the environment win over the file.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// EnvFileFromArgs finds -env-file/--env-file in args before the FlagSet is
// parsed, so the file can seed the environment that FillFromEnv reads.
func EnvFileFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		a := strings.TrimLeft(args[i], "-")
		if len(a) == len(args[i]) {
			continue
		}
		if v, ok := strings.CutPrefix(a, "env-file="); ok {
			return v
		}
		if a == "env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(EnvPrefix + "ENV_FILE")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if !validPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if !validPort(c.AdminPort) {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.DrainDelay < 0 {
		errs = append(errs, fmt.Errorf("DRAIN_DELAY must not be negative (got %s)", c.DrainDelay))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL: %w", err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	// Telemetry
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	if c.EnableTracing {
		// grpc exporter wants host:port, no scheme
		if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port when ENABLE_TRACING=true (got %q)", c.OTLPEndpoint))
		}
	}

	// Storage
	switch c.KVBackend {
	case "pebble":
		if c.PebblePath == "" {
			errs = append(errs, fmt.Errorf("PEBBLE_PATH required when KV_BACKEND=pebble"))
		}
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL required when KV_BACKEND=redis"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid KV_BACKEND %q (pebble|redis|memory)", c.KVBackend))
	}
	switch c.BlobBackend {
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_BUCKET required when BLOB_BACKEND=s3"))
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("S3_ENDPOINT must be a URL (got %q)", c.S3Endpoint))
			}
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			errs = append(errs, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid BLOB_BACKEND %q (s3|memory)", c.BlobBackend))
	}

	// Auth
	if c.AuthUsername == "" {
		errs = append(errs, fmt.Errorf("AUTH_USERNAME is required"))
	}
	if c.AuthPassword == "" {
		errs = append(errs, fmt.Errorf("AUTH_PASSWORD is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.JWTIssuer) == "" {
		errs = append(errs, fmt.Errorf("JWT_ISSUER is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive (got %s)", c.SessionTTL))
	}

	// Limits
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive (got %d)", c.MaxUploadBytes))
	}
	if c.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative (got %d)", c.TrustedProxyHops))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is on (got %d)", c.RateLimitBurst))
	}

	return errors.Join(errs...)
}
