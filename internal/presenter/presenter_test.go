package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makerwatch/internal/model"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tokens(n int64) model.Quantity {
	raw := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return model.NewQuantity(raw, 18)
}

func ptr(v float64) *float64 { return &v }

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	var got []string
	ok := Func(func(ctx context.Context, ev model.Event) error {
		got = append(got, "ok:"+string(ev.Kind()))
		return nil
	})
	bad := Func(func(ctx context.Context, ev model.Event) error {
		got = append(got, "bad")
		return errors.New("sink down")
	})

	err := Fanout{ok, nil, bad, ok}.Present(context.Background(), model.StatsSnapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, []string{"ok:stats_snapshot", "bad", "ok:stats_snapshot"}, got)
}

func TestConsoleRendersSupply(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.Present(context.Background(), model.SupplySnapshot{
		Token:       "pDAI",
		Unit:        "pDAI",
		Timestamp:   testTime,
		Value:       tokens(1100),
		WindowDelta: ptr(100),
		Window:      time.Hour,
	}))
	out := buf.String()
	assert.Contains(t, out, "Total Supply: 1,100.000 pDAI")
	assert.Contains(t, out, "Change in last hour: +100.000 pDAI")
	assert.Contains(t, out, "Wei: 1100000000000000000000")

	buf.Reset()
	require.NoError(t, c.Present(context.Background(), model.SupplySnapshot{
		Token: "pMKR", Unit: "pMKR", Timestamp: testTime, Value: tokens(5),
		InsufficientData: true, Window: 30 * time.Minute,
	}))
	assert.Contains(t, buf.String(), "Change in last 30m0s: N/A (insufficient data)")
}

func TestConsoleRendersAuctionsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	set := model.LiveAuctionSet{
		DebtUnit: "pDAI",
		Records: []model.SaleRecord{{
			ID:         7,
			Source:     model.RecordSource{Label: "ETH-A", Unit: "PLS"},
			Debt:       tokens(2500),
			Collateral: tokens(3),
			Owner:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			StartTime:  uint64(testTime.Unix()),
		}},
		Summary: model.ScanSummary{Batches: 21, Probes: 3819},
	}
	require.NoError(t, c.Present(context.Background(), set))
	require.NoError(t, c.Present(context.Background(), model.LiveDebtAuctionSet{BidUnit: "pDAI", LotUnit: "pMKR"}))
	require.NoError(t, c.Present(context.Background(), model.ScanError{Stage: model.StageStats, Message: "dial tcp: refused\nagain"}))

	out := buf.String()
	assert.Contains(t, out, "Liquidation auctions (1 live)")
	assert.Contains(t, out, "ETH-A")
	assert.Contains(t, out, "2,500.000 pDAI")
	assert.Contains(t, out, "3.000 PLS")
	assert.Contains(t, out, "2024-03-01T12:00:00Z")
	assert.Contains(t, out, "No live debt auctions found.")
	assert.Contains(t, out, "[stats] Error: dial tcp: refused again (retrying...)")
}

func TestConsoleRendersStats(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.Present(context.Background(), model.StatsSnapshot{
		Unit:  "pDAI",
		Stats: model.SystemStats{Awe: tokens(1234567), Sump: tokens(50000), Wait: 561600},
	}))
	out := buf.String()
	assert.Contains(t, out, "1,234,567.000 pDAI")
	assert.Contains(t, out, "561,600 seconds")
	assert.Equal(t, 7, strings.Count(out, ":"), "应输出七行统计")
}

func TestStateTracksLatestAndClearsErrors(t *testing.T) {
	s := NewState()
	ctx := context.Background()

	require.NoError(t, s.Present(ctx, model.ScanError{Stage: model.SupplyStage("pDAI"), Message: "timeout"}))
	require.NoError(t, s.Present(ctx, model.ScanError{Stage: model.StageStats, Message: "reverted"}))
	require.Len(t, s.Errors(), 2)

	require.NoError(t, s.Present(ctx, model.SupplySnapshot{Token: "pDAI", Value: tokens(1)}))
	require.NoError(t, s.Present(ctx, model.SupplySnapshot{Token: "pDAI", Value: tokens(2)}))
	require.NoError(t, s.Present(ctx, model.SupplySnapshot{Token: "pMKR", Value: tokens(3)}))

	snap, ok := s.Supply("pDAI")
	require.True(t, ok)
	assert.Equal(t, "2.000", snap.Value.Format(3))
	assert.Len(t, s.Supplies(), 2)
	assert.Equal(t, "pDAI", s.Supplies()[0].Token)

	errs := s.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, model.StageStats, errs[0].Stage)

	_, ok = s.Stats()
	assert.False(t, ok)
	require.NoError(t, s.Present(ctx, model.StatsSnapshot{Unit: "pDAI"}))
	_, ok = s.Stats()
	assert.True(t, ok)
	assert.Empty(t, s.Errors())
}

func TestStateConcurrentUse(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Present(context.Background(), model.LiveAuctionSet{ScannedAt: testTime})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Auctions()
			_ = s.Errors()
		}()
	}
	wg.Wait()
	_, ok := s.Auctions()
	assert.True(t, ok)
}

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	return redis.NewIntResult(2, nil)
}

func TestRedisPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRedis(pub, "makerwatch.events", zerolog.Nop())

	err := r.Present(context.Background(), model.SupplyChanged{
		Token: "pDAI", Unit: "pDAI", Timestamp: testTime, Value: tokens(1100), Delta: ptr(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "makerwatch.events", pub.channel)

	var decoded struct {
		Kind    string `json:"kind"`
		Payload struct {
			Token string   `json:"token"`
			Delta *float64 `json:"delta"`
			Value struct {
				Raw   string `json:"raw"`
				Value string `json:"value"`
			} `json:"value"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.message, &decoded))
	assert.Equal(t, "supply_changed", decoded.Kind)
	assert.Equal(t, "pDAI", decoded.Payload.Token)
	assert.Equal(t, "1100000000000000000000", decoded.Payload.Value.Raw)
	assert.Equal(t, "1100", decoded.Payload.Value.Value)
	require.NotNil(t, decoded.Payload.Delta)
	assert.Equal(t, 100.0, *decoded.Payload.Delta)
}

func TestRedisPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	r := NewRedis(pub, "events", zerolog.Nop())

	err := r.Present(context.Background(), model.StatsSnapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish stats_snapshot event")
}

func TestLogPresenterAcceptsEveryKind(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf).Level(zerolog.DebugLevel))
	ctx := context.Background()

	events := []model.Event{
		model.SupplySnapshot{Token: "pDAI", Value: tokens(1)},
		model.SupplyChanged{Token: "pDAI", Value: tokens(1)},
		model.LiveAuctionSet{},
		model.LiveDebtAuctionSet{},
		model.StatsSnapshot{},
		model.ScanError{Stage: "stats", Message: "boom"},
	}
	for _, ev := range events {
		require.NoError(t, l.Present(ctx, ev))
	}
	assert.Equal(t, len(events), strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"insufficient_data":true`)
}
