package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/common/validation"
	"github.com/vnykmshr/streamcore/pkg/logger"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
)

// Tick is one firing of a schedule.
type Tick struct {
	// Time is when the schedule fired, in the configured time zone.
	Time time.Time

	// Seq numbers the ticks of one stream from 1.
	Seq int
}

// Config configures a schedule source.
type Config struct {
	// Expression is a cron expression with an optional leading seconds
	// field, or a descriptor such as "@hourly" or "@every 30s". Required.
	Expression string

	// TimeZone the expression is evaluated in.
	// Default: time.Local
	TimeZone *time.Location

	// MaxRuns ends the stream after this many ticks.
	// Default: 0 (unlimited)
	MaxRuns int

	// HighWaterMark is the number of ticks buffered ahead of the consumer.
	// Default: 16
	HighWaterMark int

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time

	// After returns a channel that receives after d.
	// Default: a timer that is stopped when the stream is destroyed
	After func(d time.Duration) <-chan time.Time

	// Logger receives scheduling logs.
	// Default: no-op
	Logger *zap.Logger

	// Metrics records stream activity.
	// Default: none
	Metrics *metrics.Registry
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New returns a Readable that emits a Tick each time the schedule fires.
//
// The next firing time is computed when the consumer asks for more data, so
// firings that fall while the buffer is full are skipped rather than queued.
func New(cfg Config) (*stream.Readable[Tick], error) {
	if err := validation.First(
		validation.ValidateNotEmpty("schedule", "Expression", cfg.Expression),
		validation.ValidateNonNegative("schedule", "MaxRuns", cfg.MaxRuns),
	); err != nil {
		return nil, err
	}
	sched, err := parser.Parse(cfg.Expression)
	if err != nil {
		return nil, scerrors.NewValidationError("schedule", "Expression", cfg.Expression, err.Error()).
			WithHint("use five or six cron fields, or a descriptor such as @every 1m")
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	t := &ticker{
		schedule: sched,
		cfg:      cfg,
		logger:   logger.OrNop(cfg.Logger).With(zap.String("schedule", cfg.Expression)),
	}
	opts := []stream.Option{
		stream.WithName("schedule"),
		stream.WithHighWaterMark(cfg.HighWaterMark),
		stream.WithObjectMode(),
		stream.WithMetrics(cfg.Metrics),
	}
	if cfg.Logger != nil {
		opts = append(opts, stream.WithLogger(cfg.Logger))
	}
	return stream.FromSource[Tick](t, opts...), nil
}

type ticker struct {
	schedule cron.Schedule
	cfg      Config
	logger   *zap.Logger
	seq      int
}

func (t *ticker) Next(ctx context.Context) (Tick, bool, error) {
	if t.cfg.MaxRuns > 0 && t.seq >= t.cfg.MaxRuns {
		return Tick{}, false, nil
	}

	now := t.cfg.Now().In(t.cfg.TimeZone)
	next := t.schedule.Next(now)
	if next.IsZero() {
		t.logger.Info("schedule has no further firing times")
		return Tick{}, false, nil
	}

	if err := t.wait(ctx, next.Sub(now)); err != nil {
		return Tick{}, false, err
	}
	t.seq++
	t.logger.Debug("schedule fired", zap.Time("at", next), zap.Int("seq", t.seq))
	return Tick{Time: next, Seq: t.seq}, true, nil
}

func (t *ticker) wait(ctx context.Context, d time.Duration) error {
	if t.cfg.After != nil {
		select {
		case <-t.cfg.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ticker) Close() error {
	return nil
}
