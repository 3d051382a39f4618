package supply

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"makerwatch/internal/chain"
	"makerwatch/internal/metrics"
	"makerwatch/internal/model"
)

// DefaultEpsilon is the noise threshold below which supply movements are ignored.
const DefaultEpsilon = 1e-4

// ErrInsufficientData means no sample has aged past the window yet.
var ErrInsufficientData = errors.New("insufficient data for window")

// Options configure a Tracker.
type Options struct {
	Token    string
	Unit     string
	Address  common.Address
	Decimals int32
	Window   time.Duration
	Epsilon  float64
	Now      func() time.Time
}

// Reading is the outcome of a successful poll.
type Reading struct {
	Snapshot model.SupplySnapshot
	// Changed is set when the value moved beyond epsilon.
	Changed *model.SupplyChanged
}

// Tracker polls one token supply and keeps its trailing history. It is not
// safe for concurrent use; one periodic job owns it.
type Tracker struct {
	opts    Options
	reader  chain.Reader
	logger  zerolog.Logger
	metrics *metrics.Metrics

	history     *History
	lastEmitted *model.Quantity
	current     *model.Quantity
}

// NewTracker builds a supply tracker.
func NewTracker(opts Options, reader chain.Reader, logger zerolog.Logger, m *metrics.Metrics) *Tracker {
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		opts:    opts,
		reader:  reader,
		logger:  logger.With().Str("component", "supply_tracker").Str("token", opts.Token).Logger(),
		metrics: m,
		history: NewHistory(opts.Window),
	}
}

// Token returns the tracked token label.
func (t *Tracker) Token() string { return t.opts.Token }

// Poll reads totalSupply and updates the history. On a read failure nothing is mutated.
func (t *Tracker) Poll(ctx context.Context) (Reading, error) {
	raw, err := chain.ReadUint(ctx, t.reader, t.opts.Address, chain.MethodTotalSupply)
	if err != nil {
		return Reading{}, fmt.Errorf("read %s total supply: %w", t.opts.Token, err)
	}

	now := t.opts.Now()
	value := model.NewQuantity(raw, t.opts.Decimals)
	t.current = &value
	t.metrics.SetSupply(t.opts.Token, value.Scaled())

	var reading Reading
	if changed, ok := t.observe(now, value); ok {
		reading.Changed = &changed
	}

	if evicted := t.history.Evict(now); evicted > 0 {
		t.logger.Debug().Int("evicted", evicted).Msg("supply samples left window")
	}

	reading.Snapshot = t.snapshot(now, value)
	return reading, nil
}

func (t *Tracker) observe(now time.Time, value model.Quantity) (model.SupplyChanged, bool) {
	if t.lastEmitted != nil && math.Abs(value.Scaled()-t.lastEmitted.Scaled()) <= t.opts.Epsilon {
		return model.SupplyChanged{}, false
	}

	event := model.SupplyChanged{
		Token:     t.opts.Token,
		Unit:      t.opts.Unit,
		Timestamp: now,
		Value:     value,
	}
	if t.lastEmitted != nil {
		delta := value.Scaled() - t.lastEmitted.Scaled()
		event.Delta = &delta
	}

	t.history.Append(model.SupplySample{Timestamp: now, Value: value})
	t.lastEmitted = &value
	return event, true
}

// ChangeOverWindow compares the current value with the back-dated baseline.
func (t *Tracker) ChangeOverWindow(now time.Time) (float64, error) {
	if t.current == nil {
		return 0, ErrInsufficientData
	}
	past, ok := t.history.Baseline(now)
	if !ok {
		return 0, ErrInsufficientData
	}
	return t.current.Scaled() - past.Value.Scaled(), nil
}

// History returns a copy of the samples in the live window.
func (t *Tracker) History() []model.SupplySample {
	return t.history.Samples()
}

func (t *Tracker) snapshot(now time.Time, value model.Quantity) model.SupplySnapshot {
	snap := model.SupplySnapshot{
		Token:     t.opts.Token,
		Unit:      t.opts.Unit,
		Timestamp: now,
		Value:     value,
		Window:    t.opts.Window,
		History:   t.history.Samples(),
	}
	delta, err := t.ChangeOverWindow(now)
	if err != nil {
		snap.InsufficientData = true
		return snap
	}
	snap.WindowDelta = &delta
	return snap
}
