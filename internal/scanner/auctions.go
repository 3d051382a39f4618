package scanner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"makerwatch/internal/chain"
	"makerwatch/internal/metrics"
	"makerwatch/internal/model"
)

// NewSaleScanner scans Clipper.sales(id) across every collateral clipper.
func NewSaleScanner(opts Options, clippers []model.RecordSource, reader chain.Reader, logger zerolog.Logger, m *metrics.Metrics) *Scanner[model.SaleRecord] {
	if opts.Name == "" {
		opts.Name = "sales"
	}
	return New(opts, clippers, SaleProbe(reader), model.SaleRecord.Live, logger, m)
}

// NewDebtAuctionScanner scans bids(id) on the single debt auction contract.
func NewDebtAuctionScanner(opts Options, source model.RecordSource, reader chain.Reader, logger zerolog.Logger, m *metrics.Metrics) *Scanner[model.DebtAuctionRecord] {
	if opts.Name == "" {
		opts.Name = "debt_auctions"
	}
	return New(opts, []model.RecordSource{source}, DebtAuctionProbe(reader), model.DebtAuctionRecord.Live, logger, m)
}

// SaleProbe decodes sales(id) -> (pos, tab, lot, usr, tic, top).
func SaleProbe(reader chain.Reader) ProbeFunc[model.SaleRecord] {
	return func(ctx context.Context, src model.RecordSource, id uint64) (model.SaleRecord, error) {
		out, err := reader.Read(ctx, src.Address, chain.MethodSales, new(big.Int).SetUint64(id))
		if err != nil {
			return model.SaleRecord{}, err
		}
		if len(out) != 6 {
			return model.SaleRecord{}, chain.Malformed(src.Address, chain.MethodSales, fmt.Errorf("expected 6 outputs, got %d", len(out)))
		}

		ints, err := bigs(out, 0, 1, 2, 4, 5)
		if err != nil {
			return model.SaleRecord{}, chain.Malformed(src.Address, chain.MethodSales, err)
		}
		owner, err := chain.AsAddress(out[3])
		if err != nil {
			return model.SaleRecord{}, chain.Malformed(src.Address, chain.MethodSales, err)
		}

		decimals := src.Decimals
		if decimals == 0 {
			decimals = model.DefaultDecimals
		}
		return model.SaleRecord{
			ID:         id,
			Source:     src,
			Position:   ints[0].Uint64(),
			Debt:       model.NewQuantity(ints[1], model.DefaultDecimals),
			Collateral: model.NewQuantity(ints[2], decimals),
			Owner:      owner,
			StartTime:  ints[4].Uint64(),
			TopBid:     model.NewQuantity(ints[5], model.DefaultDecimals),
		}, nil
	}
}

// DebtAuctionProbe decodes bids(id) -> (bid, lot, guy, tic, end).
func DebtAuctionProbe(reader chain.Reader) ProbeFunc[model.DebtAuctionRecord] {
	return func(ctx context.Context, src model.RecordSource, id uint64) (model.DebtAuctionRecord, error) {
		out, err := reader.Read(ctx, src.Address, chain.MethodBids, new(big.Int).SetUint64(id))
		if err != nil {
			return model.DebtAuctionRecord{}, err
		}
		if len(out) != 5 {
			return model.DebtAuctionRecord{}, chain.Malformed(src.Address, chain.MethodBids, fmt.Errorf("expected 5 outputs, got %d", len(out)))
		}

		ints, err := bigs(out, 0, 1, 3, 4)
		if err != nil {
			return model.DebtAuctionRecord{}, chain.Malformed(src.Address, chain.MethodBids, err)
		}
		bidder, err := chain.AsAddress(out[2])
		if err != nil {
			return model.DebtAuctionRecord{}, chain.Malformed(src.Address, chain.MethodBids, err)
		}

		return model.DebtAuctionRecord{
			ID:        id,
			Bid:       model.NewQuantity(ints[0], model.DefaultDecimals),
			Lot:       model.NewQuantity(ints[1], model.DefaultDecimals),
			Bidder:    bidder,
			StartTime: ints[3].Uint64(),
			EndTime:   ints[4].Uint64(),
		}, nil
	}
}

// bigs converts the listed output positions; the returned slice is indexed by position.
func bigs(out []interface{}, positions ...int) ([]*big.Int, error) {
	res := make([]*big.Int, len(out))
	for _, p := range positions {
		v, err := chain.AsBig(out[p])
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", p, err)
		}
		res[p] = v
	}
	return res, nil
}
