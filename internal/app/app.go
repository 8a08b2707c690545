// Package app wires configuration into the stores, validator and send
// pipeline shared by the binaries under cmd/.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/mailtrap"
	"github.com/ignite/mailguard/internal/metrics"
	"github.com/ignite/mailguard/internal/pkg/distlock"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/pkg/ratelimit"
	"github.com/ignite/mailguard/internal/repository/memory"
	"github.com/ignite/mailguard/internal/repository/postgres"
	"github.com/ignite/mailguard/internal/repository/sqlite"
	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/sending"
	"github.com/ignite/mailguard/internal/service/validation"
)

// Database drivers accepted in database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Deps holds the opened backing services. DB is nil for the memory driver
// and Redis is nil when redis.url is empty.
type Deps struct {
	Driver      string
	DB          *sql.DB
	Redis       *redis.Client
	Validations validation.Repository
	MailLogs    maillog.Repository
}

// Open connects to the configured database and Redis.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{Driver: cfg.Database.Driver}

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database.url is required for the postgres driver")
		}
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
		}
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		d.DB = db
		d.Validations = postgres.NewValidationRepo(db)
		d.MailLogs = postgres.NewMailLogRepo(db)
	case DriverSQLite:
		dsn := cfg.Database.URL
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		d.DB = db
		d.Validations = sqlite.NewValidationRepo(db)
		d.MailLogs = sqlite.NewMailLogRepo(db)
	case DriverMemory:
		d.Validations = memory.NewValidationRepo()
		d.MailLogs = memory.NewMailLogRepo()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			// bare host:port
			opts = &redis.Options{Addr: cfg.Redis.URL}
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, using in-process locks", "error", err)
			client.Close()
		} else {
			d.Redis = client
		}
	}

	logger.Info("backing services ready", "driver", d.Driver, "redis", d.Redis != nil)
	return d, nil
}

// Close releases the database and Redis connections.
func (d *Deps) Close() error {
	var err error
	if d.Redis != nil {
		err = d.Redis.Close()
	}
	if d.DB != nil {
		if cerr := d.DB.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// Locker returns the per-address lock: Redis when available, PostgreSQL
// advisory locks without Redis, otherwise an in-process mutex.
func (d *Deps) Locker(cfg *config.Config) validation.Locker {
	switch {
	case d.Redis != nil:
		return distlock.NewKeyedRedis(d.Redis, "mailguard:validate:", cfg.Redis.LockTTL())
	case d.Driver == DriverPostgres && d.DB != nil:
		return distlock.NewKeyedPG(d.DB, "mailguard:validate:")
	default:
		return validation.NewLocalLocker()
	}
}

// RetentionLock returns the lock that keeps mail log retention to one
// instance, or nil when only one instance can exist.
func (d *Deps) RetentionLock() distlock.DistLock {
	switch {
	case d.Redis != nil:
		return distlock.NewRedisLock(d.Redis, "mailguard:retention", time.Hour)
	case d.Driver == DriverPostgres && d.DB != nil:
		return distlock.NewPGAdvisoryLock(d.DB, "mailguard:retention")
	default:
		return nil
	}
}

// Limiter caps provider API calls per minute, shared through Redis when
// it is available.
func (d *Deps) Limiter(cfg *config.Config) ratelimit.Limiter {
	if !cfg.RateLimiting.Enabled {
		return ratelimit.Unlimited{}
	}
	if d.Redis != nil {
		return ratelimit.NewRedis(d.Redis, "mailtrap", cfg.RateLimiting.MaxRequestsPerMinute)
	}
	return ratelimit.NewLocal(cfg.RateLimiting.MaxRequestsPerMinute)
}

// Services are the domain services built over Deps.
type Services struct {
	Store       *validation.Store
	Validator   *validation.Validator
	Logs        *maillog.Service
	Interceptor *sending.Interceptor
	// Provider is nil when no Mailtrap token is configured.
	Provider *mailtrap.Checker
}

// Build creates the store, validator, mail log and interceptor. resolver
// may be nil for the system resolver.
func Build(cfg *config.Config, d *Deps, resolver validation.Resolver) *Services {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	store := validation.NewStore(d.Validations,
		validation.WithTTL(cfg.Validation.CacheDuration()),
		validation.WithListener(metrics.VerdictRecorder{}),
	)

	opts := []validation.ValidatorOption{validation.WithLocker(d.Locker(cfg))}
	client := mailtrap.NewClient(cfg.Mailtrap, cfg.Validation.RetryAttempts, mailtrap.WithLimiter(d.Limiter(cfg)))
	var provider *mailtrap.Checker
	if client.Configured() {
		provider = mailtrap.NewChecker(client, store)
	}
	if cfg.Validation.UseProviderAPI {
		if provider != nil {
			opts = append(opts, validation.WithProvider(provider))
		} else {
			logger.Warn("validation.use_provider_api is set but no Mailtrap token is configured")
		}
	}
	validator := validation.NewValidator(store,
		validation.WithLookupTimeout(resolver, cfg.DNS.Timeout()), opts...)

	logs := maillog.NewService(d.MailLogs)
	interceptor := sending.NewInterceptor(validator, logs, sending.Policy{
		SkipValidation: !cfg.Validation.Enabled,
		BlockInvalid:   cfg.Validation.BlockInvalid,
		LogEnabled:     cfg.Logging.Enabled,
		LogSuccessful:  cfg.Logging.LogSuccessful,
		LogFailed:      cfg.Logging.LogFailed,
	})

	return &Services{
		Store:       store,
		Validator:   validator,
		Logs:        logs,
		Interceptor: interceptor,
		Provider:    provider,
	}
}
