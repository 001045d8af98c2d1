package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rediscache "github.com/leandroluk/oxm/cache/redis"
	"github.com/leandroluk/oxm/config"
	"github.com/leandroluk/oxm/core"
	"github.com/leandroluk/oxm/driver/memory"
	"github.com/leandroluk/oxm/driver/mongo"
	"github.com/leandroluk/oxm/driver/postgres"
	"github.com/leandroluk/oxm/internal/admin"
	"github.com/leandroluk/oxm/observe"
	"github.com/leandroluk/oxm/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newServeCommand(st *state) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the admin API with health checks and metrics",
		Example: "  oxm serve --addr :9090\n  OXM_DRIVER=postgres OXM_POSTGRES_URL=postgres://localhost/app oxm serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				st.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, st.cfg, st.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides OXM_ADDR)")
	return cmd
}

// openDriver connects the driver selected by cfg.
func openDriver(ctx context.Context, cfg config.Config) (core.Driver, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresURL)
	case "mongo":
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "memory":
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

// openPublisher selects Kafka when brokers are configured and logging
// otherwise.
func openPublisher(cfg config.Config, logger zerolog.Logger) (relay.Publisher, error) {
	if len(cfg.KafkaBrokers) > 0 {
		return relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopics)
	}
	return relay.NewLoggingPublisher(logger), nil
}

// wire assembles the components shared by every document manager of the
// process and returns the admin options describing them.
func wire(ctx context.Context, cfg config.Config, logger zerolog.Logger, reg *prometheus.Registry) (admin.Options, func(), error) {
	em := core.DefaultEventManager()
	metrics := observe.NewMetrics(reg)
	metrics.Attach(em)
	core.Use(metrics.Middleware())
	core.Use(core.LoggingMiddleware(logger))

	factory := core.NewMetadataFactory(em)
	for _, path := range cfg.MappingFiles {
		if err := factory.LoadMappingFile(path); err != nil {
			return admin.Options{}, nil, err
		}
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	driver, err := openDriver(ctx, cfg)
	if err != nil {
		return admin.Options{}, nil, err
	}
	closers = append(closers, func() { _ = driver.Close(context.Background()) })
	checks := map[string]admin.Pinger{"driver": driver}
	managerOptions := []core.ManagerOption{core.WithMetadataFactory(factory)}

	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return admin.Options{}, nil, err
		}
		cache := rediscache.New(client, "")
		closers = append(closers, func() { _ = cache.Close() })
		checks["cache"] = cache
		managerOptions = append(managerOptions, core.WithResultCache(cache, time.Duration(cfg.CacheTTL)))
	}

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		cleanup()
		return admin.Options{}, nil, err
	}
	closers = append(closers, func() { _ = publisher.Close() })
	relayOptions := []relay.Option{relay.WithLogger(logger)}
	if cfg.RelayStrict {
		relayOptions = append(relayOptions, relay.Strict())
	}
	if err := em.AddSubscriber(relay.New(publisher, relayOptions...)); err != nil {
		cleanup()
		return admin.Options{}, nil, err
	}

	return admin.Options{
		Metadata: factory,
		Events:   em,
		Checks:   checks,
		Gatherer: reg,
		Logger:   logger,
		Manager:  newManagerFactory(driver, managerOptions...),
	}, cleanup, nil
}

// newManagerFactory returns a constructor of per-request document managers
// sharing driver and options.
func newManagerFactory(driver core.Driver, options ...core.ManagerOption) func() *core.DocumentManager {
	return func() *core.DocumentManager { return core.NewDocumentManager(driver, options...) }
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, cleanup, err := wire(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           admin.NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("driver", cfg.Driver).Msg("oxm admin listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
