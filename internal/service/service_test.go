package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makerwatch/internal/chain"
	"makerwatch/internal/config"
	"makerwatch/internal/model"
	"makerwatch/internal/presenter"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// deploymentReader answers every read the service issues against a fake deployment.
type deploymentReader struct {
	mu         sync.Mutex
	supply     map[common.Address]*big.Int
	liveSale   common.Address
	statsFails int
}

func (r *deploymentReader) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch method {
	case chain.MethodTotalSupply:
		return []interface{}{r.supply[contract]}, nil
	case chain.MethodSales:
		id := args[0].(*big.Int).Int64()
		owner := common.HexToAddress("0x00000000000000000000000000000000000000b0")
		if contract == r.liveSale && id == 3 {
			return []interface{}{big.NewInt(0), wad(2500), wad(2), owner, big.NewInt(1700000000), wad(0)}, nil
		}
		return []interface{}{big.NewInt(0), wad(0), wad(0), common.Address{}, big.NewInt(0), wad(0)}, nil
	case chain.MethodBids:
		id := args[0].(*big.Int).Int64()
		guy := common.HexToAddress("0x00000000000000000000000000000000000000c0")
		if id == 1 {
			return []interface{}{wad(50000), wad(250), guy, big.NewInt(1700000000), big.NewInt(1700003600)}, nil
		}
		return []interface{}{wad(0), wad(0), common.Address{}, big.NewInt(0), big.NewInt(0)}, nil
	case chain.MethodWait:
		return []interface{}{big.NewInt(600)}, nil
	default:
		if r.statsFails > 0 {
			r.statsFails--
			return nil, &chain.CallError{Kind: chain.KindUnreachable, Contract: contract, Method: method, Err: errors.New("connection refused")}
		}
		return []interface{}{wad(7)}, nil
	}
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Present(ctx context.Context, ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func (r *recorder) kinds() []model.EventKind {
	var out []model.EventKind
	for _, ev := range r.snapshot() {
		out = append(out, ev.Kind())
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Ilks = cfg.Ilks[:2]
	cfg.Auctions.MaxID = 5
	cfg.Auctions.InterBatchDelay = 0
	cfg.DebtAuctions.MaxID = 5
	return cfg
}

func testReader(cfg *config.Config) *deploymentReader {
	return &deploymentReader{
		supply: map[common.Address]*big.Int{
			common.HexToAddress(cfg.Contracts.Stablecoin.Address): wad(1000),
			common.HexToAddress(cfg.Contracts.Governance.Address): wad(90),
		},
		liveSale: common.HexToAddress(cfg.Ilks[1].Clipper),
	}
}

func TestOncePresentsEveryPass(t *testing.T) {
	cfg := testConfig(t)
	rec := &recorder{}
	svc := New(cfg, Deps{Reader: testReader(cfg), Presenter: rec, Logger: zerolog.Nop()})

	require.Len(t, svc.Passes(), 5)
	require.NoError(t, svc.Once(context.Background()))

	assert.Equal(t, []model.EventKind{
		model.KindSupplyChanged, model.KindSupplySnapshot,
		model.KindSupplyChanged, model.KindSupplySnapshot,
		model.KindLiveAuctionSet,
		model.KindLiveDebtAuctionSet,
		model.KindStatsSnapshot,
	}, rec.kinds())

	events := rec.snapshot()
	first := events[1].(model.SupplySnapshot)
	assert.Equal(t, "pDAI", first.Token)
	assert.True(t, first.InsufficientData)
	assert.Nil(t, events[0].(model.SupplyChanged).Delta)

	sales := events[4].(model.LiveAuctionSet)
	require.Len(t, sales.Records, 1)
	assert.Equal(t, "ETH-B", sales.Records[0].Source.Label)
	assert.Equal(t, uint64(3), sales.Records[0].ID)
	assert.Equal(t, "pDAI", sales.DebtUnit)
	assert.Equal(t, 12, sales.Summary.Probes)

	debt := events[5].(model.LiveDebtAuctionSet)
	require.Len(t, debt.Records, 1)
	assert.Equal(t, "pMKR", debt.LotUnit)

	st := events[6].(model.StatsSnapshot)
	assert.Equal(t, uint64(600), st.Stats.Wait)
	assert.Equal(t, "7.000", st.Stats.Awe.Format(3))
}

func TestOnceSurfacesFailuresAsScanErrors(t *testing.T) {
	cfg := testConfig(t)
	reader := testReader(cfg)
	reader.statsFails = 100
	rec := &recorder{}
	svc := New(cfg, Deps{Reader: reader, Presenter: rec, Logger: zerolog.Nop()})

	err := svc.Once(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrUnreachable)
	assert.Contains(t, err.Error(), "stats")

	kinds := rec.kinds()
	require.Len(t, kinds, 7)
	assert.Equal(t, model.KindScanError, kinds[6])
	scanErr := rec.snapshot()[6].(model.ScanError)
	assert.Equal(t, model.StageStats, scanErr.Stage)
	assert.Contains(t, scanErr.Message, "connection refused")
}

func TestRunRetriesFailedPassOnFastPath(t *testing.T) {
	cfg := testConfig(t)
	for _, job := range []*config.JobConfig{&cfg.Jobs.Supply, &cfg.Jobs.Auctions, &cfg.Jobs.DebtAuctions, &cfg.Jobs.Stats} {
		job.Interval = time.Hour
		job.RetryInterval = 10 * time.Millisecond
	}
	reader := testReader(cfg)
	reader.statsFails = 1
	rec := &recorder{}
	state := presenter.NewState()
	svc := New(cfg, Deps{Reader: reader, Presenter: presenter.Fanout{rec, state}, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := state.Stats()
		return ok
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}

	var sawError bool
	for _, ev := range rec.snapshot() {
		if e, ok := ev.(model.ScanError); ok && e.Stage == model.StageStats {
			sawError = true
		}
		if ev.Kind() == model.KindStatsSnapshot {
			assert.True(t, sawError, "失败状态应先于重试成功出现")
		}
	}
	assert.True(t, sawError)
	assert.Empty(t, state.Errors(), "成功后应清除错误状态")
}
