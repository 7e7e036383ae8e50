package catfeed

import (
	"errors"

	"github.com/MrEthical07/catfeed/internal/stores"
	"github.com/MrEthical07/catfeed/jwt"
	"github.com/MrEthical07/catfeed/password"
	"github.com/MrEthical07/catfeed/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/thejerf/abtime"
)

// Builder assembles an Engine. A Builder is single-use: the second Build
// call fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts      AccountProvider
	auditSink     AuditSink
	resetNotifier ResetNotifier
	clock         abtime.AbstractTime
	logger        *zerolog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and reset records. The caller
// owns the connection and closes it after Engine.Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccounts(provider AccountProvider) *Builder {
	b.accounts = provider
	return b
}

// WithAuditSink sets where audit events go. It has no effect unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithResetNotifier sets how reset links reach the account holder. Without
// one the link is written to the Engine logger.
func (b *Builder) WithResetNotifier(notifier ResetNotifier) *Builder {
	b.resetNotifier = notifier
	return b
}

// WithClock replaces the wall clock. Tests pass abtime.NewManual() to step
// sessions and reset links past their expiry.
func (b *Builder) WithClock(clock abtime.AbstractTime) *Builder {
	b.clock = clock
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}

	codec, err := password.NewCodec(password.Config{SaltLength: cfg.Password.SaltLength})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		codec:        codec,
		accounts:     b.accounts,
		clock:        b.clock,
		logger:       zerolog.Nop(),
	}
	if b.clock == nil {
		engine.clock = abtime.NewRealTime()
	}
	if b.logger != nil {
		engine.logger = *b.logger
	}

	// -------- PASSWORD RESET --------
	if cfg.PasswordReset.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.PasswordReset.TTL,
			SigningMethod: jwt.SigningMethod(cfg.PasswordReset.SigningMethod),
			PrivateKey:    cloneBytes(cfg.PasswordReset.PrivateKey),
			PublicKey:     cloneBytes(cfg.PasswordReset.PublicKey),
			Issuer:        cfg.PasswordReset.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.resetTokens = jm
		engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.PasswordReset.RedisPrefix)
		engine.resetNotifier = b.resetNotifier
		if engine.resetNotifier == nil {
			engine.resetNotifier = logResetNotifier(engine)
		}
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	for _, w := range cfg.Lint() {
		engine.logger.Debug().Str("code", w.Code).Msg(w.Message)
	}

	b.built = true

	return engine, nil
}
