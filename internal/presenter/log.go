package presenter

import (
	"context"

	"github.com/rs/zerolog"

	"makerwatch/internal/model"
)

// Log writes a structured line per event.
type Log struct {
	logger zerolog.Logger
}

// NewLog builds a log presenter.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "presenter_log").Logger()}
}

// Present implements Presenter.
func (l *Log) Present(_ context.Context, ev model.Event) error {
	switch e := ev.(type) {
	case model.SupplySnapshot:
		entry := l.logger.Debug().
			Str("token", e.Token).
			Str("supply", e.Value.Format(3)).
			Int("history", len(e.History))
		if e.WindowDelta != nil {
			entry = entry.Float64("window_delta", *e.WindowDelta)
		} else {
			entry = entry.Bool("insufficient_data", true)
		}
		entry.Msg("supply snapshot")
	case model.SupplyChanged:
		entry := l.logger.Info().Str("token", e.Token).Str("supply", e.Value.Format(3)).Str("wei", e.Value.String())
		if e.Delta != nil {
			entry = entry.Float64("delta", *e.Delta)
		}
		entry.Msg("supply changed")
	case model.LiveAuctionSet:
		l.logger.Info().
			Int("live", len(e.Records)).
			Int("probes", e.Summary.Probes).
			Int("failures", e.Summary.Failures).
			Msg("liquidation auctions loaded")
	case model.LiveDebtAuctionSet:
		l.logger.Info().
			Int("live", len(e.Records)).
			Int("probes", e.Summary.Probes).
			Int("failures", e.Summary.Failures).
			Msg("debt auctions loaded")
	case model.StatsSnapshot:
		l.logger.Info().
			Str("awe", e.Stats.Awe.Format(3)).
			Str("sin", e.Stats.Sin.Format(3)).
			Str("ash", e.Stats.Ash.Format(3)).
			Str("woe", e.Stats.Woe.Format(3)).
			Str("joy", e.Stats.Joy.Format(3)).
			Str("sump", e.Stats.Sump.Format(3)).
			Uint64("wait", e.Stats.Wait).
			Msg("stats loaded")
	case model.ScanError:
		l.logger.Warn().Str("stage", e.Stage).Str("error", e.Message).Msg("pass failed; retrying")
	default:
		l.logger.Debug().Str("kind", string(ev.Kind())).Msg("unhandled event")
	}
	return nil
}
