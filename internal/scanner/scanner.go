package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"

	"makerwatch/internal/chain"
	"makerwatch/internal/metrics"
	"makerwatch/internal/model"
)

// ErrInvalidOptions aborts a pass whose configuration cannot be scanned.
var ErrInvalidOptions = errors.New("invalid scanner options")

// ProbeFunc reads the record stored under id on src.
type ProbeFunc[T any] func(ctx context.Context, src model.RecordSource, id uint64) (T, error)

// LivenessFunc separates active records from empty or settled slots.
type LivenessFunc[T any] func(record T) bool

// Options tune a scan pass.
type Options struct {
	Name            string
	MaxID           uint64
	BatchSize       int
	InterBatchDelay time.Duration
	// MaxInFlight bounds concurrent probes; zero means the full batch width.
	MaxInFlight int
	// ProbeRetries re-reads a slot after a transient failure. Zero keeps
	// failed probes indistinguishable from empty slots.
	ProbeRetries int
	RetryDelay   time.Duration

	Sleep   func(ctx context.Context, d time.Duration) error
	OnBatch func(b Batch)
}

// Batch is a contiguous, inclusive id range probed together.
type Batch struct {
	Index int
	From  uint64
	To    uint64
}

// Size is the number of ids in the batch.
func (b Batch) Size() int { return int(b.To-b.From) + 1 }

// Batches partitions [0, maxID] into ranges of at most size ids.
func Batches(maxID uint64, size int) []Batch {
	if size <= 0 {
		return nil
	}
	step := uint64(size)
	out := make([]Batch, 0, maxID/step+1)
	for from := uint64(0); from <= maxID; from += step {
		to := from + step - 1
		if to > maxID || to < from {
			to = maxID
		}
		out = append(out, Batch{Index: len(out), From: from, To: to})
		if to == maxID {
			break
		}
	}
	return out
}

// Result is the aggregated outcome of one pass.
type Result[T any] struct {
	Records []T
	Summary model.ScanSummary
}

// Scanner probes a sparse id space across one or more sources.
type Scanner[T any] struct {
	opts    Options
	sources []model.RecordSource
	probe   ProbeFunc[T]
	live    LivenessFunc[T]
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New builds a scanner over sources.
func New[T any](opts Options, sources []model.RecordSource, probe ProbeFunc[T], live LivenessFunc[T], logger zerolog.Logger, m *metrics.Metrics) *Scanner[T] {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Name == "" {
		opts.Name = "scanner"
	}
	return &Scanner[T]{
		opts:    opts,
		sources: sources,
		probe:   probe,
		live:    live,
		logger:  logger.With().Str("component", "scanner").Str("scanner", opts.Name).Logger(),
		metrics: m,
	}
}

// Name identifies the scanner in logs and metrics.
func (s *Scanner[T]) Name() string { return s.opts.Name }

func (s *Scanner[T]) validate() error {
	switch {
	case len(s.sources) == 0:
		return fmt.Errorf("%w: no sources", ErrInvalidOptions)
	case s.opts.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidOptions)
	case s.probe == nil || s.live == nil:
		return fmt.Errorf("%w: probe and liveness functions required", ErrInvalidOptions)
	case s.opts.InterBatchDelay < 0:
		return fmt.Errorf("%w: negative inter-batch delay", ErrInvalidOptions)
	}
	return nil
}

// Scan runs one full pass. Individual probe failures are swallowed; only
// invalid options or context cancellation abort the pass.
func (s *Scanner[T]) Scan(ctx context.Context) (Result[T], error) {
	if err := s.validate(); err != nil {
		return Result[T]{}, err
	}

	start := time.Now()
	var res Result[T]
	for i, batch := range Batches(s.opts.MaxID, s.opts.BatchSize) {
		if i > 0 && s.opts.InterBatchDelay > 0 {
			if err := s.opts.Sleep(ctx, s.opts.InterBatchDelay); err != nil {
				return Result[T]{}, fmt.Errorf("scan %s interrupted: %w", s.opts.Name, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return Result[T]{}, fmt.Errorf("scan %s interrupted: %w", s.opts.Name, err)
		}
		if s.opts.OnBatch != nil {
			s.opts.OnBatch(batch)
		}

		s.runBatch(ctx, batch, &res)
		// probes cut short by cancellation read as empty slots
		if err := ctx.Err(); err != nil {
			return Result[T]{}, fmt.Errorf("scan %s interrupted: %w", s.opts.Name, err)
		}
		res.Summary.Batches++
	}

	res.Summary.Duration = time.Since(start)
	s.metrics.ObservePass(s.opts.Name, len(res.Records), res.Summary.Duration)
	s.logger.Info().
		Int("live", len(res.Records)).
		Int("batches", res.Summary.Batches).
		Int("probes", res.Summary.Probes).
		Int("failures", res.Summary.Failures).
		Dur("duration", res.Summary.Duration).
		Msg("scan pass complete")
	return res, nil
}

type probeOutcome[T any] struct {
	record T
	err    error
}

func (s *Scanner[T]) runBatch(ctx context.Context, batch Batch, res *Result[T]) {
	width := batch.Size()
	outcomes := make([]probeOutcome[T], len(s.sources)*width)

	limit := s.opts.MaxInFlight
	if limit <= 0 || limit > len(outcomes) {
		limit = len(outcomes)
	}
	swg := sizedwaitgroup.New(limit)
	for srcIdx, src := range s.sources {
		for offset := 0; offset < width; offset++ {
			swg.Add()
			go func(slot int, src model.RecordSource, id uint64) {
				defer swg.Done()
				rec, err := s.probeOne(ctx, src, id)
				outcomes[slot] = probeOutcome[T]{record: rec, err: err}
			}(srcIdx*width+offset, src, batch.From+uint64(offset))
		}
	}
	swg.Wait()

	for slot, out := range outcomes {
		res.Summary.Probes++
		switch {
		case out.err != nil:
			res.Summary.Failures++
			s.metrics.ObserveProbe(s.opts.Name, "failed")
			src := s.sources[slot/width]
			s.logger.Debug().Err(out.err).
				Str("source", src.Label).
				Uint64("id", batch.From+uint64(slot%width)).
				Msg("probe failed; treating slot as empty")
		case s.live(out.record):
			s.metrics.ObserveProbe(s.opts.Name, "live")
			res.Records = append(res.Records, out.record)
		default:
			res.Summary.Empty++
			s.metrics.ObserveProbe(s.opts.Name, "empty")
		}
	}
}

func (s *Scanner[T]) probeOne(ctx context.Context, src model.RecordSource, id uint64) (rec T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe %s/%d panicked: %v", src.Label, id, r)
		}
	}()

	if s.opts.ProbeRetries <= 0 {
		return s.probe(ctx, src, id)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.RetryDelay), uint64(s.opts.ProbeRetries)),
		ctx,
	)
	err = backoff.Retry(func() error {
		var probeErr error
		rec, probeErr = s.probe(ctx, src, id)
		if probeErr != nil && !chain.Transient(probeErr) {
			return backoff.Permanent(probeErr)
		}
		return probeErr
	}, policy)
	return rec, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
