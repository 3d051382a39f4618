package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"makerwatch/internal/alerting"
	"makerwatch/internal/chain"
	"makerwatch/internal/config"
	"makerwatch/internal/httpapi"
	"makerwatch/internal/metrics"
	"makerwatch/internal/presenter"
	"makerwatch/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newReader(m *metrics.Metrics) *chain.EthReader {
	return chain.NewEthReader(chain.Options{
		RPCURL:            a.Config.Ethereum.RPCURL,
		Timeout:           a.Config.Ethereum.RequestTimeout,
		RequestsPerSecond: a.Config.Ethereum.RequestsPerSecond,
		Burst:             a.Config.Ethereum.Burst,
		MaxConnsPerHost:   a.Config.Ethereum.MaxConnsPerHost,
	}, a.Logger, m)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) newAlerter() *alerting.Alerter {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
		return nil
	}
	return alerting.NewAlerter(alerting.Options{
		SupplyDeltaThreshold: a.Config.Alerting.SupplyDeltaThreshold,
		NewAuctions:          a.Config.Alerting.NewAuctions,
		Cooldown:             a.Config.Alerting.Cooldown,
	}, notifier, a.Logger)
}

func (a *App) openRedis(ctx context.Context) (*redis.Client, func()) {
	if !a.Config.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		a.Logger.Warn().Err(err).Str("addr", a.Config.Redis.Addr).Msg("redis unreachable; publishing will be retried per event")
	}
	return client, func() { _ = client.Close() }
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	reader := a.newReader(m)
	defer reader.Close()

	state := presenter.NewState()
	sinks := presenter.Fanout{presenter.NewLog(a.Logger), state}
	if alerter := a.newAlerter(); alerter != nil {
		sinks = append(sinks, alerter)
	}
	client, closeRedis := a.openRedis(ctx)
	if client != nil {
		defer closeRedis()
		sinks = append(sinks, presenter.NewRedis(client, a.Config.Redis.Channel, a.Logger))
	}

	svc := service.New(a.Config, service.Deps{
		Reader:    reader,
		Presenter: sinks,
		Metrics:   m,
		Logger:    a.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if a.Config.HTTP.Enabled {
		api := httpapi.New(state, reg, a.Logger)
		g.Go(func() error {
			return api.ListenAndServe(gctx, a.Config.HTTP.ListenAddr, a.Config.HTTP.ShutdownTimeout)
		})
	}

	a.Logger.Info().Str("rpc", a.Config.Ethereum.RPCURL).Msg("starting monitoring service")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}
