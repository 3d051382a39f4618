package alerting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"makerwatch/internal/model"
)

// maxListed caps how many new auctions one message enumerates.
const maxListed = 10

// Options 控制告警触发条件。
type Options struct {
	// SupplyDeltaThreshold is the absolute change that triggers a supply alert; zero disables them.
	SupplyDeltaThreshold float64
	NewAuctions          bool
	Cooldown             time.Duration
	Now                  func() time.Time
}

// Alerter turns events into notifications. The first auction set seen is
// taken as the baseline so a restart does not announce every open auction.
type Alerter struct {
	opts     Options
	notifier Notifier
	logger   zerolog.Logger

	mu          sync.Mutex
	lastSent    map[string]time.Time
	seenSales   map[string]struct{}
	salesPrimed bool
	seenDebt    map[uint64]struct{}
	debtPrimed  bool
}

// NewAlerter 构造告警 presenter。
func NewAlerter(opts Options, notifier Notifier, logger zerolog.Logger) *Alerter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Alerter{
		opts:      opts,
		notifier:  notifier,
		logger:    logger.With().Str("component", "alerting").Logger(),
		lastSent:  make(map[string]time.Time),
		seenSales: make(map[string]struct{}),
		seenDebt:  make(map[uint64]struct{}),
	}
}

// Present implements the presenter contract.
func (a *Alerter) Present(ctx context.Context, ev model.Event) error {
	note, ok := a.evaluate(ev)
	if !ok {
		return nil
	}
	if err := a.notifier.Notify(ctx, note); err != nil {
		return fmt.Errorf("notify %s: %w", note.Key, err)
	}

	a.mu.Lock()
	a.lastSent[note.Key] = a.opts.Now()
	a.mu.Unlock()
	return nil
}

func (a *Alerter) evaluate(ev model.Event) (Notification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case model.SupplyChanged:
		return a.supplyChanged(e)
	case model.LiveAuctionSet:
		if !a.opts.NewAuctions {
			return Notification{}, false
		}
		return a.newSales(e)
	case model.LiveDebtAuctionSet:
		if !a.opts.NewAuctions {
			return Notification{}, false
		}
		return a.newDebtAuctions(e)
	}
	return Notification{}, false
}

func (a *Alerter) supplyChanged(e model.SupplyChanged) (Notification, bool) {
	if a.opts.SupplyDeltaThreshold <= 0 || e.Delta == nil || math.Abs(*e.Delta) < a.opts.SupplyDeltaThreshold {
		return Notification{}, false
	}

	key := model.SupplyStage(e.Token)
	now := a.opts.Now()
	if last, ok := a.lastSent[key]; ok && a.opts.Cooldown > 0 && now.Sub(last) < a.opts.Cooldown {
		a.logger.Debug().Str("key", key).Time("last_sent", last).Msg("告警冷却中，跳过")
		return Notification{}, false
	}

	direction := "minted"
	if *e.Delta < 0 {
		direction = "burned"
	}
	return Notification{
		Key:   key,
		Title: fmt.Sprintf("%s supply %s", e.Token, direction),
		At:    e.Timestamp,
		Lines: []string{
			fmt.Sprintf("Change: %s %s", model.GroupThousands(fmt.Sprintf("%+.3f", *e.Delta)), e.Unit),
			fmt.Sprintf("Total Supply: %s %s", e.Value.Grouped(3), e.Unit),
		},
	}, true
}

func (a *Alerter) newSales(e model.LiveAuctionSet) (Notification, bool) {
	current := make(map[string]struct{}, len(e.Records))
	var fresh []model.SaleRecord
	for _, r := range e.Records {
		key := fmt.Sprintf("%s#%d", r.Source.Label, r.ID)
		current[key] = struct{}{}
		if _, seen := a.seenSales[key]; !seen {
			fresh = append(fresh, r)
		}
	}
	primed := a.salesPrimed
	a.seenSales = remember(a.seenSales, current, e.Summary.Failures)
	a.salesPrimed = true
	if !primed || len(fresh) == 0 {
		return Notification{}, false
	}

	lines := make([]string, 0, maxListed+1)
	for i, r := range fresh {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("... and %d more", len(fresh)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf("%s #%d: tab %s %s, lot %s %s",
			r.Source.Label, r.ID, r.Debt.Grouped(3), e.DebtUnit, r.Collateral.Grouped(3), r.Source.Unit))
	}
	return Notification{
		Key:   model.StageAuctions,
		Title: fmt.Sprintf("%d new liquidation auction(s)", len(fresh)),
		At:    e.ScannedAt,
		Lines: lines,
	}, true
}

func (a *Alerter) newDebtAuctions(e model.LiveDebtAuctionSet) (Notification, bool) {
	current := make(map[uint64]struct{}, len(e.Records))
	var fresh []model.DebtAuctionRecord
	for _, r := range e.Records {
		current[r.ID] = struct{}{}
		if _, seen := a.seenDebt[r.ID]; !seen {
			fresh = append(fresh, r)
		}
	}
	primed := a.debtPrimed
	a.seenDebt = remember(a.seenDebt, current, e.Summary.Failures)
	a.debtPrimed = true
	if !primed || len(fresh) == 0 {
		return Notification{}, false
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	lines := make([]string, 0, maxListed+1)
	for i, r := range fresh {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("... and %d more", len(fresh)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf("#%d: bid %s %s, lot %s %s, ends %s",
			r.ID, r.Bid.Grouped(3), e.BidUnit, r.Lot.Grouped(3), e.LotUnit, r.Ends().Format(time.RFC3339)))
	}
	return Notification{
		Key:   model.StageDebtAuctions,
		Title: fmt.Sprintf("%d new debt auction(s)", len(fresh)),
		At:    e.ScannedAt,
		Lines: lines,
	}, true
}

// remember returns the seen set after a pass. A pass with failed probes may
// have missed live records, so ids are only forgotten after a clean pass.
func remember[K comparable](seen, current map[K]struct{}, failures int) map[K]struct{} {
	if failures == 0 {
		return current
	}
	for k := range current {
		seen[k] = struct{}{}
	}
	return seen
}
