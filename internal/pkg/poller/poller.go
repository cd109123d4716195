package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

var ErrNoSnapshot = errors.New("poller: no snapshot yet")

type SnapshotSource interface {
	Snapshot(ctx context.Context) (*model.DeviceSnapshot, error)
}

// Sink receives every successful snapshot.
type Sink func(ctx context.Context, snapshot *model.DeviceSnapshot) error

// Poller takes snapshots on a cron schedule and keeps the latest one.
type Poller struct {
	source   SnapshotSource
	schedule cron.Schedule
	spec     string
	sinks    []Sink
	observe  func(err error, took time.Duration)
	logger   *zap.Logger

	mu      sync.RWMutex
	latest  *model.DeviceSnapshot
	lastErr error
}

func WithSink(sink Sink) func(*Poller) {
	return func(p *Poller) {
		p.sinks = append(p.sinks, sink)
	}
}

func WithObserver(observe func(err error, took time.Duration)) func(*Poller) {
	return func(p *Poller) {
		p.observe = observe
	}
}

func WithLogger(logger *zap.Logger) func(*Poller) {
	return func(p *Poller) {
		p.logger = logger
	}
}

// New validates spec, a standard cron expression or descriptor such as "@every 30s".
func New(source SnapshotSource, spec string, opts ...func(*Poller)) (*Poller, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("poller: schedule %q: %w", spec, err)
	}
	p := &Poller{
		source:   source,
		schedule: schedule,
		spec:     spec,
		logger:   zap.L(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Poll takes one snapshot and hands it to the sinks. Sink failures are
// logged and do not fail the poll.
func (p *Poller) Poll(ctx context.Context) (*model.DeviceSnapshot, error) {
	started := time.Now()
	snapshot, err := p.source.Snapshot(ctx)
	if p.observe != nil {
		p.observe(err, time.Since(started))
	}

	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.latest = snapshot
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	p.logger.Debug("snapshot taken",
		zap.Time("timestamp", snapshot.Timestamp),
		zap.Int("inverters", len(snapshot.Inverters)),
		zap.Duration("took", time.Since(started)),
	)
	for i, sink := range p.sinks {
		if err := sink(ctx, snapshot); err != nil {
			p.logger.Error("sink failed", zap.Int("sink", i), zap.Error(err))
		}
	}
	return snapshot, nil
}

// Latest returns the last successful snapshot together with the outcome of
// the last poll.
func (p *Poller) Latest() (*model.DeviceSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil && p.lastErr == nil {
		return nil, ErrNoSnapshot
	}
	return p.latest, p.lastErr
}

// Run polls once right away and then on schedule until ctx is done. Polls
// that would overlap a running one are skipped.
func (p *Poller) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{p.logger.Sugar()})))
	c.Schedule(p.schedule, cron.FuncJob(func() {
		p.pollAndLog(ctx)
	}))

	p.pollAndLog(ctx)
	c.Start()
	p.logger.Info("polling started", zap.String("schedule", p.spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (p *Poller) pollAndLog(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.Poll(ctx); err != nil {
		p.logger.Error("poll failed", zap.Error(err))
	}
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
