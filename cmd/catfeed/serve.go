package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/accounts"
	"github.com/MrEthical07/catfeed/content"
	"github.com/MrEthical07/catfeed/metrics/export/prometheus"
	"github.com/MrEthical07/catfeed/middleware"
	"github.com/MrEthical07/catfeed/upload"
	"github.com/MrEthical07/catfeed/web"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type serveOptions struct {
	addr      string
	dbPath    string
	redisAddr string
	dev       bool

	uploadDir string
	s3Bucket  string
	s3Prefix  string
	s3Region  string
	s3URL     string

	baseURL      string
	resetSecret  string
	secureCookie bool
	sessionTTL   time.Duration

	metrics  bool
	tracing  bool
	logLevel string
	logFmt   string
}

func serveCmd() *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Long: `Run the catfeed web server.

Sessions live in Redis. Accounts, locations and posts live in a SQLite file.
Uploaded photos go to a local directory, or to S3 when --s3-bucket is set.
With --dev an in-process Redis is started and password reset links are
logged instead of mailed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", envOr("CATFEED_ADDR", ":8080"), "listen address")
	f.StringVar(&o.dbPath, "db", envOr("CATFEED_DB", "catfeed.db"), "SQLite database file")
	f.StringVar(&o.redisAddr, "redis", envOr("CATFEED_REDIS_ADDR", "localhost:6379"), "Redis address")
	f.BoolVar(&o.dev, "dev", false, "use an in-process Redis and log reset links")
	f.StringVar(&o.uploadDir, "upload-dir", envOr("CATFEED_UPLOAD_DIR", "uploads"), "directory for uploaded photos")
	f.StringVar(&o.s3Bucket, "s3-bucket", envOr("CATFEED_S3_BUCKET", ""), "store photos in this S3 bucket")
	f.StringVar(&o.s3Prefix, "s3-prefix", envOr("CATFEED_S3_PREFIX", "uploads/"), "S3 key prefix")
	f.StringVar(&o.s3Region, "s3-region", envOr("AWS_REGION", "us-east-1"), "S3 region")
	f.StringVar(&o.s3URL, "s3-endpoint", envOr("CATFEED_S3_ENDPOINT", ""), "custom S3 endpoint (path-style)")
	f.StringVar(&o.baseURL, "base-url", envOr("CATFEED_BASE_URL", "http://localhost:8080"), "public URL used in reset links")
	f.StringVar(&o.resetSecret, "reset-secret", envOr("CATFEED_RESET_SECRET", ""), "HMAC secret for reset links; empty disables password reset")
	f.BoolVar(&o.secureCookie, "secure-cookies", false, "mark the session cookie Secure")
	f.DurationVar(&o.sessionTTL, "session-ttl", 20*time.Minute, "idle session lifetime")
	f.BoolVar(&o.metrics, "metrics", true, "serve /metrics")
	f.BoolVar(&o.tracing, "tracing", false, "record request spans")
	f.StringVar(&o.logLevel, "log-level", envOr("CATFEED_LOG_LEVEL", "info"), "log level")
	f.StringVar(&o.logFmt, "log-format", envOr("CATFEED_LOG_FORMAT", "console"), "log format: console or json")

	return cmd
}

func runServe(ctx context.Context, o serveOptions) error {
	logger, err := newLogger(os.Stderr, o.logLevel, o.logFmt)
	if err != nil {
		return err
	}

	db, err := openDB(o.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	accountStore, err := accounts.NewSQLiteStore(ctx, db)
	if err != nil {
		return err
	}
	contentStore, err := content.Open(ctx, db, nil)
	if err != nil {
		return err
	}

	rdb, closeRedis, err := openRedis(o)
	if err != nil {
		return err
	}
	defer closeRedis()

	uploads, err := openUploads(o)
	if err != nil {
		return err
	}

	cfg := catfeed.DefaultConfig()
	cfg.Session.TTL = o.sessionTTL
	cfg.Security.RequireSecureCookies = o.secureCookie
	if o.resetSecret != "" {
		cfg.PasswordReset.Enabled = true
		cfg.PasswordReset.PrivateKey = []byte(o.resetSecret)
		cfg.PasswordReset.BaseURL = o.baseURL
	}
	for _, w := range cfg.Lint() {
		logger.Warn().Str("code", w.Code).Msg(w.Message)
	}

	engine, err := catfeed.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccounts(accountStore).
		WithAuditSink(catfeed.NewZerologSink(logger.With().Str("component", "audit").Logger())).
		WithLogger(logger).
		WithMetricsEnabled(o.metrics).
		WithLatencyHistograms(o.metrics).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := web.Options{
		Engine:   engine,
		Content:  contentStore,
		Accounts: accountStore,
		Uploads:  uploads,
		Logger:   logger,
	}
	if o.metrics {
		reg := promclient.NewRegistry()
		reg.MustRegister(
			prometheus.NewCollector(engine),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.HTTPMetrics = middleware.NewHTTPMetrics(middleware.WithRegistry(reg))
		opts.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	if o.tracing {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts.TracerProvider = tp
	}

	site, err := web.New(opts)
	if err != nil {
		return err
	}

	sup := newSupervisor(logger)
	sup.Add(&httpService{
		server: &http.Server{
			Addr:              o.addr,
			Handler:           site.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger: logger,
	})
	sup.Add(&upload.Janitor{
		Store:    uploads,
		Interval: time.Hour,
		MaxAge:   time.Hour,
		InUse:    contentStore.ImageInUse,
		Logger:   logger.With().Str("component", "janitor").Logger(),
	})

	logger.Info().Str("addr", o.addr).Bool("dev", o.dev).Msg("catfeed starting")
	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openDB(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func openRedis(o serveOptions) (redis.UniversalClient, func(), error) {
	if o.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return rdb, func() { _ = rdb.Close(); mr.Close() }, nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
	return rdb, func() { _ = rdb.Close() }, nil
}

func openUploads(o serveOptions) (upload.Store, error) {
	if o.s3Bucket == "" {
		return upload.NewDiskStore(o.uploadDir, upload.DefaultConfig(), nil)
	}
	client := s3.New(s3.Options{
		Region:       o.s3Region,
		Credentials:  aws.NewCredentialsCache(envCredentials{}),
		UsePathStyle: o.s3URL != "",
	}, func(opts *s3.Options) {
		if o.s3URL != "" {
			opts.BaseEndpoint = aws.String(o.s3URL)
		}
	})
	return upload.NewS3Store(client, o.s3Bucket, o.s3Prefix, upload.DefaultConfig(), nil)
}

// envCredentials reads the standard AWS_* variables on every refresh.
type envCredentials struct{}

func (envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return creds, nil
}

func newSupervisor(logger zerolog.Logger) *suture.Supervisor {
	return suture.New("catfeed", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
	})
}
