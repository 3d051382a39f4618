package alerting

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makerwatch/internal/model"
)

type recordingNotifier struct {
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

func amount(n int64) model.Quantity {
	raw := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return model.NewQuantity(raw, 18)
}

func delta(v float64) *float64 { return &v }

func TestAlerterSupplyThresholdAndCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &recordingNotifier{}
	a := NewAlerter(Options{
		SupplyDeltaThreshold: 1000,
		Cooldown:             30 * time.Minute,
		Now:                  func() time.Time { return now },
	}, rec, testLogger())
	ctx := context.Background()

	// first sample carries no delta
	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(1)}))
	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(1), Delta: delta(999)}))
	assert.Empty(t, rec.notes)

	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(5000), Delta: delta(-2500)}))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "pDAI supply burned", rec.notes[0].Title)
	assert.Contains(t, rec.notes[0].Lines[0], "-2,500.000 pDAI")

	now = now.Add(10 * time.Minute)
	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(9000), Delta: delta(4000)}))
	assert.Len(t, rec.notes, 1, "冷却期内不应重复告警")

	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pMKR", Unit: "pMKR", Value: amount(9000), Delta: delta(4000)}))
	assert.Len(t, rec.notes, 2, "冷却按 token 区分")

	now = now.Add(30 * time.Minute)
	require.NoError(t, a.Present(ctx, model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(9000), Delta: delta(4000)}))
	require.Len(t, rec.notes, 3)
	assert.Equal(t, "pDAI supply minted", rec.notes[2].Title)
}

func TestAlerterNewAuctionsAfterBaseline(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAlerter(Options{NewAuctions: true}, rec, testLogger())
	ctx := context.Background()

	sale := func(label string, id uint64) model.SaleRecord {
		return model.SaleRecord{ID: id, Source: model.RecordSource{Label: label, Unit: "PLS"}, Collateral: amount(1), Debt: amount(10), StartTime: 1}
	}

	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{Records: []model.SaleRecord{sale("ETH-A", 1)}}))
	assert.Empty(t, rec.notes, "首个集合只作为基线")

	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{Records: []model.SaleRecord{sale("ETH-A", 1)}}))
	assert.Empty(t, rec.notes)

	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{DebtUnit: "pDAI", Records: []model.SaleRecord{sale("ETH-A", 1), sale("ETH-B", 1)}}))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "1 new liquidation auction(s)", rec.notes[0].Title)
	assert.Contains(t, rec.notes[0].Lines[0], "ETH-B #1")

	// an auction that disappears and comes back is new again
	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{}))
	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{Records: []model.SaleRecord{sale("ETH-A", 1)}}))
	assert.Len(t, rec.notes, 2)
}

func TestAlerterNewDebtAuctionsListCapped(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAlerter(Options{NewAuctions: true}, rec, testLogger())
	ctx := context.Background()

	require.NoError(t, a.Present(ctx, model.LiveDebtAuctionSet{}))

	var records []model.DebtAuctionRecord
	for id := uint64(20); id > 8; id-- {
		records = append(records, model.DebtAuctionRecord{ID: id, Lot: amount(1), Bid: amount(1), StartTime: 1, EndTime: 2})
	}
	require.NoError(t, a.Present(ctx, model.LiveDebtAuctionSet{Records: records}))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "12 new debt auction(s)", rec.notes[0].Title)
	assert.Len(t, rec.notes[0].Lines, maxListed+1)
	assert.Contains(t, rec.notes[0].Lines[0], "#9:")
	assert.Equal(t, "... and 2 more", rec.notes[0].Lines[maxListed])
}

func TestAlerterDisabledAndErrors(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("telegram down")}
	a := NewAlerter(Options{SupplyDeltaThreshold: 1}, rec, testLogger())
	ctx := context.Background()

	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{}))
	require.NoError(t, a.Present(ctx, model.StatsSnapshot{}))
	assert.Empty(t, rec.notes)

	err := a.Present(ctx, model.SupplyChanged{Token: "pDAI", Delta: delta(5)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify supply/pDAI")
}

func TestAlerterKeepsSeenAuctionsAcrossFailedPasses(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAlerter(Options{NewAuctions: true}, rec, testLogger())
	ctx := context.Background()

	live := model.LiveAuctionSet{Records: []model.SaleRecord{{
		ID: 3, Source: model.RecordSource{Label: "ETH-A", Unit: "PLS"}, Collateral: amount(1), Debt: amount(10), StartTime: 1,
	}}}
	require.NoError(t, a.Present(ctx, live))
	require.NoError(t, a.Present(ctx, model.LiveAuctionSet{Summary: model.ScanSummary{Probes: 10, Failures: 1}}))
	require.NoError(t, a.Present(ctx, live))
	assert.Empty(t, rec.notes, "探测失败导致的缺失不应视为新拍卖")

	require.NoError(t, a.Present(ctx, model.LiveDebtAuctionSet{Records: []model.DebtAuctionRecord{{ID: 7, Lot: amount(1), Bid: amount(1), StartTime: 1, EndTime: 2}}}))
	require.NoError(t, a.Present(ctx, model.LiveDebtAuctionSet{Summary: model.ScanSummary{Failures: 2}}))
	require.NoError(t, a.Present(ctx, model.LiveDebtAuctionSet{Records: []model.DebtAuctionRecord{{ID: 7, Lot: amount(1), Bid: amount(1), StartTime: 1, EndTime: 2}}}))
	assert.Empty(t, rec.notes)
}

func TestAlerterCooldownStartsOnlyAfterDelivery(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("telegram down")}
	a := NewAlerter(Options{SupplyDeltaThreshold: 1, Cooldown: time.Hour}, rec, testLogger())
	ctx := context.Background()
	ev := model.SupplyChanged{Token: "pDAI", Unit: "pDAI", Value: amount(10), Delta: delta(5)}

	require.Error(t, a.Present(ctx, ev))
	rec.err = nil
	require.NoError(t, a.Present(ctx, ev))
	require.Len(t, rec.notes, 2, "发送失败后应允许立即重试")

	require.NoError(t, a.Present(ctx, ev))
	assert.Len(t, rec.notes, 2, "成功发送后进入冷却")
}
