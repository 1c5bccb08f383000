package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/cfg"
	"github.com/ohowe1/clipboard/internal/clipboardhttp"
	"github.com/ohowe1/clipboard/internal/health"
	"github.com/ohowe1/clipboard/internal/httpmw"
	"github.com/ohowe1/clipboard/internal/httpserver"
	"github.com/ohowe1/clipboard/internal/lock"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/metrics"
	"github.com/ohowe1/clipboard/internal/opshttp"
	"github.com/ohowe1/clipboard/internal/otelx"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/prof"
	"github.com/ohowe1/clipboard/internal/ratelimit"
	"github.com/ohowe1/clipboard/internal/register"
	"github.com/ohowe1/clipboard/internal/secrets"
	"github.com/ohowe1/clipboard/internal/session"
	v "github.com/ohowe1/clipboard/internal/version"
)

// multipart framing allowance on top of the largest upload
const uploadOverhead = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// the env file has to be in the environment before flags are filled from it
	if err := cfg.LoadEnvFile(cfg.EnvFileFromArgs(os.Args[1:])); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Print(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"kv_backend", conf.KVBackend,
		"blob_backend", conf.BlobBackend,
		"s3_bucket", conf.S3Bucket,
		"s3_prefix", conf.S3Prefix,
		"s3_endpoint", conf.S3Endpoint,
		"session_ttl", conf.SessionTTL,
		"cookie_secure", conf.CookieSecure,
		"max_upload_bytes", conf.MaxUploadBytes,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"rate_limit_rps", conf.RateLimitRPS,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	profActive := conf.EnablePyroscope && err == nil
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfo(vi)
	m.SetProfilingActive(profActive)

	// AWS is only touched for secret references, the s3 client builds its own config
	var resolver *secrets.Resolver
	if secrets.NeedsAWS(conf.JWTSecret, conf.AuthPassword, conf.S3SecretAccessKey) {
		var loadOpts []func(*config.LoadOptions) error
		if conf.S3Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(conf.S3Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		resolver = secrets.NewResolver(ssm.NewFromConfig(awsCfg), kms.NewFromConfig(awsCfg))
	} else {
		resolver = secrets.NewResolver(nil, nil)
	}

	jwtSecret, err := resolver.Resolve(ctx, conf.JWTSecret)
	if err != nil {
		L.Error(ctx, err, "failed to resolve jwt secret")
		os.Exit(1)
	}
	authPassword, err := resolver.Resolve(ctx, conf.AuthPassword)
	if err != nil {
		L.Error(ctx, err, "failed to resolve auth password")
		os.Exit(1)
	}
	s3Secret, err := resolver.Resolve(ctx, conf.S3SecretAccessKey)
	if err != nil {
		L.Error(ctx, err, "failed to resolve s3 secret key")
		os.Exit(1)
	}

	kvs, err := openKV(ctx, conf, m)
	if err != nil {
		L.Error(ctx, err, "failed to open metadata store", "kv_backend", conf.KVBackend)
		os.Exit(1)
	}
	defer func() {
		if err := kvs.Close(); err != nil {
			L.Error(context.Background(), err, "metadata store close")
		}
	}()

	blobs, blobPing, err := openBlob(ctx, conf, s3Secret, m)
	if err != nil {
		L.Error(ctx, err, "failed to open file store", "blob_backend", conf.BlobBackend)
		os.Exit(1)
	}

	sessions, err := session.NewGate(session.Config{
		Secret: []byte(jwtSecret),
		Issuer: conf.JWTIssuer,
		TTL:    conf.SessionTTL,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create session gate")
		os.Exit(1)
	}

	renderer, err := pages.New()
	if err != nil {
		L.Error(ctx, err, "failed to parse page templates")
		os.Exit(1)
	}

	lockGate := lock.New(kvs)
	api := clipboardhttp.New(clipboardhttp.Options{
		Registers: register.New(kvs, blobs),
		Lock:      lockGate,
		Sessions:  sessions,
		Policy:    access.New(lockGate),
		Credentials: session.Credentials{
			Username: conf.AuthUsername,
			Password: authPassword,
		},
		Pages:          renderer,
		Metrics:        m,
		CookieSecure:   conf.CookieSecure,
		MaxUploadBytes: conf.MaxUploadBytes,
	})

	var gate health.ShutdownGate

	// ready only while not draining and the stores answer
	probes := []health.Probe{
		gate.Probe(),
		health.Timeout("kv", 2*time.Second, health.CheckFunc(kvs.Ping)),
	}
	if blobPing != nil {
		probes = append(probes, health.Timeout("blob", 2*time.Second, health.CheckFunc(blobPing.Ping)))
	}
	readiness := health.All(probes...)

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// logged once per visitor lifetime in the limiter
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	appHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Routes:       api.RegisterRoutes,
		MaxBodyBytes: conf.MaxUploadBytes + uploadOverhead,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = appHTTPStop(context.Background()) }()

	// metrics, probes and pprof; rejects public remote addresses
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its own timeout if this mattered
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")
	gate.Set("draining")

	if conf.DrainDelay > 0 {
		L.Info(context.Background(), "draining", "delay", conf.DrainDelay)
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.DrainDelay):
			L.Info(context.Background(), "drain period complete")
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := appHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}
