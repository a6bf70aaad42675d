// Command keygate runs the API-key gateway HTTP server.
//
// Configuration comes from an optional YAML file (--config) and KEYGATE_*
// environment variables. With --dev the server uses an embedded miniredis
// and an in-memory client directory, so nothing external is needed:
//
//	go run ./cmd/keygate --dev
//
//	# register a client (the raw key is shown once)
//	curl -s -X POST localhost:8080/clients \
//	  -H 'Content-Type: application/json' \
//	  -d '{"name":"acme","requestsPerMinute":5}'
//
//	# call a protected route
//	curl -i localhost:8080/hello -H "X-API-KEY: <API_KEY>"
//	curl -s localhost:8080/usage -H "X-API-KEY: <API_KEY>"
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/MrEthical07/keygate"
	"github.com/MrEthical07/keygate/api"
	"github.com/MrEthical07/keygate/credential"
	"github.com/MrEthical07/keygate/directory"
	"github.com/MrEthical07/keygate/internal/appconfig"
	"github.com/MrEthical07/keygate/internal/logging"
	promexport "github.com/MrEthical07/keygate/metrics/export/prometheus"
	"github.com/MrEthical07/keygate/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "keygate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("keygate", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	dev := flags.Bool("dev", false, "use an embedded miniredis and in-memory directory")
	flags.String("listen", "", "listen address, overrides config")
	flags.String("log-level", "", "log level, overrides config")
	if err := flags.Parse(args); err != nil {
		return err
	}

	v := appconfig.New()
	for key, name := range map[string]string{"listen": "listen", "log.level": "log-level"} {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	if *dev {
		v.Set("directory.backend", appconfig.DirectoryMemory)
	}

	cfg, err := appconfig.LoadWith(v, *configPath)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeRedis, err := openRedis(cfg.Redis, *dev, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	gwCfg := cfg.Gateway()
	counter := store.NewRedis(client, gwCfg.StoreTimeout)

	connectCfg := store.DefaultConnectConfig()
	if cfg.Redis.ConnectMaxElapsed > 0 {
		connectCfg.MaxElapsed = cfg.Redis.ConnectMaxElapsed
	}
	if err := store.Connect(ctx, counter, connectCfg, logger); err != nil {
		return err
	}

	dir, err := openDirectory(ctx, cfg, client, gwCfg, logger)
	if err != nil {
		return err
	}

	for _, w := range gwCfg.Lint() {
		logger.Warn("questionable gateway setting", zap.String("code", w.Code), zap.String("detail", w.Message))
	}

	builder := keygate.New().
		WithConfig(gwCfg).
		WithCounter(counter).
		WithDirectory(dir).
		WithLogger(logger)
	if gwCfg.Audit.Enabled {
		builder = builder.WithAuditSink(keygate.NewLoggerSink(logger))
	}
	gw, err := builder.Build()
	if err != nil {
		return err
	}
	defer gw.Close()

	var metricsHandler http.Handler
	if gwCfg.Metrics.Enabled {
		metricsHandler = promexport.Handler(promexport.NewCollector(gw))
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: api.NewHandler(api.RouterOpts{
			Gateway:        gw,
			Logger:         logger,
			MetricsHandler: metricsHandler,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen), zap.Bool("dev", *dev))
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

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg appconfig.RedisConfig, dev bool, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("using embedded miniredis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{cfg.Addr},
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
	logger.Info("using redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, func() { _ = client.Close() }, nil
}

func openDirectory(ctx context.Context, cfg appconfig.Config, client redis.UniversalClient, gwCfg keygate.Config, logger *zap.Logger) (directory.Store, error) {
	var dir directory.Store
	switch cfg.Directory.Backend {
	case appconfig.DirectoryMemory:
		mem, err := directory.NewMemory()
		if err != nil {
			return nil, err
		}
		dir = mem
	default:
		dir = directory.NewRedis(client, gwCfg.KeyPrefix, gwCfg.StoreTimeout)
	}

	if cfg.Directory.SeedFile == "" {
		return dir, nil
	}
	n, err := directory.LoadSeedFile(ctx, cfg.Directory.SeedFile, dir, credential.Digest)
	if err != nil {
		return nil, fmt.Errorf("seed directory: %w", err)
	}
	logger.Info("directory seeded",
		zap.String("backend", cfg.Directory.Backend),
		zap.String("file", cfg.Directory.SeedFile),
		zap.Int("created", n),
	)
	return dir, nil
}
