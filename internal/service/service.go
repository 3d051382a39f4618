package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"makerwatch/internal/chain"
	"makerwatch/internal/config"
	"makerwatch/internal/metrics"
	"makerwatch/internal/model"
	"makerwatch/internal/presenter"
	"makerwatch/internal/scanner"
	"makerwatch/internal/scheduler"
	"makerwatch/internal/stats"
	"makerwatch/internal/supply"
)

// Pass is one unit of periodic work and the events it produces.
type Pass struct {
	Name  string
	Stage string
	Job   config.JobConfig
	Run   func(ctx context.Context) ([]model.Event, error)
}

// Deps are the shared collaborators of every pass.
type Deps struct {
	Reader    chain.Reader
	Presenter presenter.Presenter
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service orchestrates supply tracking, auction scans and stats reads.
type Service struct {
	passes    []Pass
	presenter presenter.Presenter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Presenter == nil {
		deps.Presenter = presenter.Fanout(nil)
	}
	s := &Service{
		presenter: deps.Presenter,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "service").Logger(),
		now:       deps.Now,
	}

	for _, token := range []config.TokenConfig{cfg.Contracts.Stablecoin, cfg.Contracts.Governance} {
		s.passes = append(s.passes, s.supplyPass(cfg, token, deps))
	}
	s.passes = append(s.passes,
		s.auctionPass(cfg, deps),
		s.debtAuctionPass(cfg, deps),
		s.statsPass(cfg, deps),
	)
	return s
}

// Passes lists the configured passes in start order.
func (s *Service) Passes() []Pass {
	return append([]Pass(nil), s.passes...)
}

func (s *Service) supplyPass(cfg *config.Config, token config.TokenConfig, deps Deps) Pass {
	tracker := supply.NewTracker(supply.Options{
		Token:    token.Symbol,
		Unit:     token.Symbol,
		Address:  common.HexToAddress(token.Address),
		Decimals: token.Decimals,
		Window:   cfg.Supply.Window,
		Epsilon:  cfg.Supply.Epsilon,
		Now:      deps.Now,
	}, deps.Reader, deps.Logger, deps.Metrics)

	stage := model.SupplyStage(token.Symbol)
	return Pass{
		Name:  stage,
		Stage: stage,
		Job:   cfg.Jobs.Supply,
		Run: func(ctx context.Context) ([]model.Event, error) {
			reading, err := tracker.Poll(ctx)
			if err != nil {
				return nil, err
			}
			events := make([]model.Event, 0, 2)
			if reading.Changed != nil {
				events = append(events, *reading.Changed)
			}
			return append(events, reading.Snapshot), nil
		},
	}
}

func (s *Service) auctionPass(cfg *config.Config, deps Deps) Pass {
	sc := scanner.NewSaleScanner(scanOptions(model.StageAuctions, cfg.Auctions), cfg.Clippers(), deps.Reader, deps.Logger, deps.Metrics)
	unit := cfg.Contracts.Stablecoin.Symbol
	return Pass{
		Name:  model.StageAuctions,
		Stage: model.StageAuctions,
		Job:   cfg.Jobs.Auctions,
		Run: func(ctx context.Context) ([]model.Event, error) {
			res, err := sc.Scan(ctx)
			if err != nil {
				return nil, err
			}
			return []model.Event{model.LiveAuctionSet{
				Records:   res.Records,
				DebtUnit:  unit,
				ScannedAt: deps.Now(),
				Summary:   res.Summary,
			}}, nil
		},
	}
}

func (s *Service) debtAuctionPass(cfg *config.Config, deps Deps) Pass {
	source := model.RecordSource{Label: "flop", Address: cfg.DebtAuctionHouse(), Decimals: model.DefaultDecimals}
	sc := scanner.NewDebtAuctionScanner(scanOptions(model.StageDebtAuctions, cfg.DebtAuctions), source, deps.Reader, deps.Logger, deps.Metrics)
	bidUnit, lotUnit := cfg.Contracts.Stablecoin.Symbol, cfg.Contracts.Governance.Symbol
	return Pass{
		Name:  model.StageDebtAuctions,
		Stage: model.StageDebtAuctions,
		Job:   cfg.Jobs.DebtAuctions,
		Run: func(ctx context.Context) ([]model.Event, error) {
			res, err := sc.Scan(ctx)
			if err != nil {
				return nil, err
			}
			return []model.Event{model.LiveDebtAuctionSet{
				Records:   res.Records,
				BidUnit:   bidUnit,
				LotUnit:   lotUnit,
				ScannedAt: deps.Now(),
				Summary:   res.Summary,
			}}, nil
		},
	}
}

func (s *Service) statsPass(cfg *config.Config, deps Deps) Pass {
	fetcher := stats.NewFetcher(common.HexToAddress(cfg.Contracts.Vow), deps.Reader, deps.Logger)
	unit := cfg.Contracts.Stablecoin.Symbol
	return Pass{
		Name:  model.StageStats,
		Stage: model.StageStats,
		Job:   cfg.Jobs.Stats,
		Run: func(ctx context.Context) ([]model.Event, error) {
			st, err := fetcher.Fetch(ctx)
			if err != nil {
				return nil, err
			}
			return []model.Event{model.StatsSnapshot{Stats: st, Unit: unit}}, nil
		},
	}
}

func scanOptions(name string, c config.ScanConfig) scanner.Options {
	return scanner.Options{
		Name:            name,
		MaxID:           c.MaxID,
		BatchSize:       c.BatchSize,
		InterBatchDelay: c.InterBatchDelay,
		MaxInFlight:     c.MaxInFlight,
		ProbeRetries:    c.ProbeRetries,
		RetryDelay:      c.RetryDelay,
	}
}

// Execute runs p once. A failure is presented as a ScanError and returned so
// the caller can take its retry path.
func (s *Service) Execute(ctx context.Context, p Pass) error {
	events, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.present(ctx, model.ScanError{Stage: p.Stage, Message: err.Error(), At: s.now().UTC()})
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	for _, ev := range events {
		s.present(ctx, ev)
	}
	return nil
}

func (s *Service) present(ctx context.Context, ev model.Event) {
	if err := s.presenter.Present(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(ev.Kind())).Msg("presenter failed")
	}
}

// Once runs every pass a single time, in order, and joins their errors.
func (s *Service) Once(ctx context.Context) error {
	var errs []error
	for _, p := range s.passes {
		if err := s.Execute(ctx, p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run schedules every pass as an independent periodic job until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.passes {
		job := scheduler.New(scheduler.Options{
			Name:             p.Name,
			Interval:         p.Job.Interval,
			RetryInterval:    p.Job.RetryInterval,
			RetryMaxInterval: p.Job.RetryMaxInterval,
			StartupDelay:     p.Job.StartupDelay,
			Now:              s.now,
		}, func(ctx context.Context) error {
			return s.Execute(ctx, p)
		}, s.logger, s.metrics)
		g.Go(func() error { return job.Run(gctx) })
	}

	s.logger.Info().Int("jobs", len(s.passes)).Msg("monitoring jobs started")
	return g.Wait()
}
