package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/location-weather/internal/cache"
	"github.com/kjstillabower/location-weather/internal/circuitbreaker"
	"github.com/kjstillabower/location-weather/internal/client"
	"github.com/kjstillabower/location-weather/internal/config"
	"github.com/kjstillabower/location-weather/internal/geolocation"
	"github.com/kjstillabower/location-weather/internal/models"
	httphandler "github.com/kjstillabower/location-weather/internal/http"
	"github.com/kjstillabower/location-weather/internal/observability"
	"github.com/kjstillabower/location-weather/internal/service"
	"github.com/kjstillabower/location-weather/internal/widget"
)

func main() {
	serve := flag.Bool("serve", false, "serve the weather over HTTP instead of running the terminal widget")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(logger, *serve); err != nil {
		logger.Error("exiting", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(logger *zap.Logger, serve bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.TracingEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.FlushTelemetry(flushCtx, nil, shutdownTracing); err != nil {
			logger.Error("telemetry flush", zap.Error(err))
		}
	}()

	store, err := cache.Open(cache.Options{
		Backend:               cfg.CacheBackend,
		SQLitePath:            cfg.SQLitePath,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		RedisDB:               cfg.RedisDB,
		Retention:             cfg.CacheRetention,
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("cache store close", zap.Error(err))
		}
	}()
	observability.RegisterStoreInfo(cfg.CacheBackend)
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.String("key", cfg.CacheKey))

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return fmt.Errorf("weather client: %w", err)
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String(), int(to))
				logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	locator, err := newLocator(cfg)
	if err != nil {
		return fmt.Errorf("geolocation: %w", err)
	}
	logger.Info("geolocation provider", zap.String("provider", cfg.GeolocationProvider))

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.CoalesceEnabled {
		opts = append(opts, service.WithCoalescing(cfg.CoalesceTimeout))
	}
	fetcher := service.NewLocationWeatherFetcher(locator, weatherClient, cache.NewEntryStore(store, cfg.CacheKey), opts...)

	if !serve {
		return widget.NewSession(fetcher, logger).Run(ctx, os.Stdin, os.Stdout)
	}
	return runServer(ctx, logger, cfg, fetcher, weatherClient, store)
}

// defaultKeyProbe is where /health asks the provider when no static position is configured.
var defaultKeyProbe = models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}

func keyProbe(cfg *config.Config) models.Coordinates {
	if cfg.GeolocationProvider == config.ProviderStatic {
		return cfg.StaticPosition
	}
	return defaultKeyProbe
}

func newLocator(cfg *config.Config) (geolocation.Locator, error) {
	switch cfg.GeolocationProvider {
	case config.ProviderStatic:
		return geolocation.NewStaticLocator(cfg.StaticPosition)
	case config.ProviderIP:
		return geolocation.NewIPLocator(cfg.IPLookupURL, cfg.GeolocationTimeout), nil
	default:
		return geolocation.Unsupported{}, nil
	}
}

func runServer(ctx context.Context, logger *zap.Logger, cfg *config.Config, fetcher *service.LocationWeatherFetcher, keys httphandler.KeyValidator, store cache.Backend) error {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(fetcher, store, logger)
	handler.SetKeyValidator(keys, keyProbe(cfg))
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		InFlight:       inFlight,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	logger.Info("shutdown complete")
	return nil
}
