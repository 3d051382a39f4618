package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"makerwatch/internal/metrics"
)

// ErrJobInFlight is returned when a run is requested while another is in progress.
var ErrJobInFlight = errors.New("job run already in flight")

// RunFunc is one pass of a periodic job.
type RunFunc func(ctx context.Context) error

// State is the lifecycle position of a job.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Options tune a periodic job.
type Options struct {
	Name string
	// Interval is the wait after a successful run.
	Interval time.Duration
	// RetryInterval is the wait after a failed run.
	RetryInterval time.Duration
	// RetryMaxInterval, when above RetryInterval, makes consecutive failures
	// back off exponentially up to this cap.
	RetryMaxInterval time.Duration
	StartupDelay     time.Duration
	Now              func() time.Time
}

// Outcome describes a finished run and when the next one is due.
type Outcome struct {
	State      State
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	Delay      time.Duration
	Next       time.Time
}

// Job runs a RunFunc forever: T_ok after success, T_err after failure.
type Job struct {
	opts    Options
	run     RunFunc
	retry   backoff.BackOff
	logger  zerolog.Logger
	metrics *metrics.Metrics

	running atomic.Bool
	state   atomic.Int32

	lastMu sync.Mutex
	last   Outcome
}

// New constructs a Job.
func New(opts Options, run RunFunc, logger zerolog.Logger, m *metrics.Metrics) *Job {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = opts.Interval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{
		opts:    opts,
		run:     run,
		retry:   newRetryPolicy(opts),
		logger:  logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger(),
		metrics: m,
	}
}

func newRetryPolicy(opts Options) backoff.BackOff {
	if opts.RetryMaxInterval <= opts.RetryInterval {
		return backoff.NewConstantBackOff(opts.RetryInterval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInterval
	b.MaxInterval = opts.RetryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Name returns the job name.
func (j *Job) Name() string { return j.opts.Name }

// State returns the current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Last returns the outcome of the most recent completed run.
func (j *Job) Last() Outcome {
	j.lastMu.Lock()
	defer j.lastMu.Unlock()
	return j.last
}

// RunOnce executes a single pass and reports when the next pass is due.
func (j *Job) RunOnce(ctx context.Context) (Outcome, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrJobInFlight
	}
	defer j.running.Store(false)

	j.state.Store(int32(StateRunning))
	out := Outcome{StartedAt: j.opts.Now()}
	err := j.invoke(ctx)
	out.FinishedAt = j.opts.Now()

	if err != nil {
		out.State = StateFailed
		out.Err = err
		out.Delay = j.retry.NextBackOff()
		if out.Delay == backoff.Stop {
			out.Delay = j.opts.RetryInterval
		}
	} else {
		out.State = StateSucceeded
		out.Delay = j.opts.Interval
		j.retry.Reset()
	}
	out.Next = out.FinishedAt.Add(out.Delay)

	j.state.Store(int32(out.State))
	j.metrics.ObserveJob(j.opts.Name, out.State.String(), out.FinishedAt.Sub(out.StartedAt))
	j.lastMu.Lock()
	j.last = out
	j.lastMu.Unlock()
	j.state.Store(int32(StateIdle))

	if err != nil {
		j.logger.Error().Err(err).Dur("retry_in", out.Delay).Msg("job run failed")
	} else {
		j.logger.Debug().Dur("next_in", out.Delay).Msg("job run succeeded")
	}
	return out, nil
}

func (j *Job) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.opts.Name, r)
		}
	}()
	return j.run(ctx)
}

// Run blocks, executing the job immediately and then on its own cadence until ctx is cancelled.
func (j *Job) Run(ctx context.Context) error {
	if j.opts.StartupDelay > 0 {
		if err := wait(ctx, j.opts.StartupDelay); err != nil {
			return err
		}
	}

	j.logger.Info().Dur("interval", j.opts.Interval).Dur("retry_interval", j.opts.RetryInterval).Msg("job started")
	for {
		out, err := j.RunOnce(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		delay := out.Delay
		if errors.Is(err, ErrJobInFlight) {
			delay = j.opts.RetryInterval
		}

		j.logger.Debug().Time("next_run", j.opts.Now().Add(delay)).Msg("waiting for next run")
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
