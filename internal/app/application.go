package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/scanzie/smeal/internal/auth"
	"github.com/scanzie/smeal/internal/backend"
	"github.com/scanzie/smeal/internal/cache"
	"github.com/scanzie/smeal/internal/config"
	"github.com/scanzie/smeal/internal/gateway"
	"github.com/scanzie/smeal/internal/logging"
	"github.com/scanzie/smeal/internal/poller"
	"github.com/scanzie/smeal/internal/report"
	"github.com/scanzie/smeal/internal/store"
	"github.com/scanzie/smeal/internal/webclient"
)

// Application is the global runtime state container. It owns the shared
// services built from configuration; pass it to the API server or CLI
// rather than using package-level variables.
type Application struct {
	Config *config.Config
	Logger logging.Logger

	Store        *store.Store
	Cache        cache.Cache
	Gateway      *gateway.Gateway
	Auth         *auth.Resolver
	Backend      *backend.Client
	Orchestrator *Orchestrator
	// Archive is nil when no bucket is configured.
	Archive *report.Publisher

	closers []func() error
}

// NewApplication builds every service from cfg. On error, whatever was
// already opened is closed again.
func NewApplication(ctx context.Context, cfg *config.Config, logger logging.Logger) (a *Application, err error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	a = &Application{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	a.Store, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, config.AppName+":")
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Cache = rc
		a.closers = append(a.closers, rc.Close)
	} else {
		a.Cache = cache.NewMemoryCache()
	}

	a.Gateway = gateway.New(a.Store, a.Cache, gateway.Config{CacheTTL: cfg.CacheTTL}, logger)
	a.Auth = auth.NewResolver(a.Store, logger)

	if cfg.S3.Bucket != "" {
		a.Archive, err = report.NewPublisher(ctx, report.S3Config{
			ServiceURL: cfg.S3.ServiceURL,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Bucket:     cfg.S3.Bucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("report archive: %w", err)
		}
		a.Gateway.SetArchive(a.Archive)
	}

	web, err := webclient.NewNetHTTPClient(webclient.DefaultConfig(), logger, nil)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}
	a.closers = append(a.closers, web.Close)

	a.Backend = backend.New(backend.Config{
		BaseURL:        cfg.BackendURL,
		RequestTimeout: cfg.Poll.RequestTimeout,
	}, web, nil, logger)

	client := a.Backend
	a.Orchestrator = NewOrchestrator(&Config{
		Poll: poller.Config{
			Interval:             cfg.Poll.Interval,
			RedirectDelay:        cfg.Poll.RedirectDelay,
			MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
			MaxDuration:          cfg.Poll.MaxDuration,
		},
		WatchRetention: cfg.WatchRetention,
	}, func(c backend.Credentials) Backend {
		return client.WithCredentials(backend.StaticCredentials(c))
	}, a.Gateway, logger)
	a.closers = append(a.closers, a.Orchestrator.Close)

	logger.Info("application ready",
		logging.Field{Key: "database_driver", Value: cfg.Database.Driver},
		logging.Field{Key: "redis", Value: cfg.RedisURL != ""},
		logging.Field{Key: "archive", Value: a.Archive != nil})
	return a, nil
}

// Close releases resources in reverse order of creation. Running watches
// are cancelled first.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
