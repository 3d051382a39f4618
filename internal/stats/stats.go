package stats

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"makerwatch/internal/chain"
	"makerwatch/internal/model"
)

// statMethods is the read order; the index positions are relied on below.
var statMethods = []string{
	chain.MethodAwe,
	chain.MethodSin,
	chain.MethodAsh,
	chain.MethodWoe,
	chain.MethodJoy,
	chain.MethodSump,
	chain.MethodWait,
}

// Fetcher reads the Vow accounting figures.
type Fetcher struct {
	vow    common.Address
	reader chain.Reader
	logger zerolog.Logger
	now    func() time.Time
}

// NewFetcher builds a stats fetcher for the vow at address.
func NewFetcher(vow common.Address, reader chain.Reader, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		vow:    vow,
		reader: reader,
		logger: logger.With().Str("component", "stats_fetcher").Logger(),
		now:    time.Now,
	}
}

// Fetch performs the seven reads in sequence. Any failure aborts the pass.
func (f *Fetcher) Fetch(ctx context.Context) (model.SystemStats, error) {
	values := make([]*big.Int, len(statMethods))
	for i, method := range statMethods {
		v, err := chain.ReadUint(ctx, f.reader, f.vow, method)
		if err != nil {
			return model.SystemStats{}, fmt.Errorf("read vow %s: %w", method, err)
		}
		values[i] = v
	}

	if !values[6].IsUint64() {
		return model.SystemStats{}, chain.Malformed(f.vow, chain.MethodWait, fmt.Errorf("wait %s overflows uint64", values[6]))
	}

	stats := model.SystemStats{
		Awe:    model.NewQuantity(values[0], model.DefaultDecimals),
		Sin:    model.NewQuantity(values[1], model.DefaultDecimals),
		Ash:    model.NewQuantity(values[2], model.DefaultDecimals),
		Woe:    model.NewQuantity(values[3], model.DefaultDecimals),
		Joy:    model.NewQuantity(values[4], model.DefaultDecimals),
		Sump:   model.NewQuantity(values[5], model.DefaultDecimals),
		Wait:   values[6].Uint64(),
		ReadAt: f.now().UTC(),
	}
	f.logger.Debug().Str("awe", stats.Awe.Format(3)).Str("joy", stats.Joy.Format(3)).Msg("vow stats read")
	return stats, nil
}
