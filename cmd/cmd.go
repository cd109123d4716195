package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/solarlog-integration/internal/pkg/config"
	"github.com/anicoll/solarlog-integration/internal/pkg/logging"
	"github.com/anicoll/solarlog-integration/internal/pkg/metrics"
	"github.com/anicoll/solarlog-integration/internal/pkg/model"
	"github.com/anicoll/solarlog-integration/internal/pkg/mqtt"
	"github.com/anicoll/solarlog-integration/internal/pkg/poller"
	"github.com/anicoll/solarlog-integration/internal/pkg/publisher"
	"github.com/anicoll/solarlog-integration/internal/pkg/server"
	"github.com/anicoll/solarlog-integration/internal/pkg/solarlog"
)

// SolarlogCommand is the main entry point of the CLI. Configuration comes
// from the environment, flags override it.
func SolarlogCommand(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("poll-schedule") {
		cfg.PollSchedule = ctx.String("poll-schedule")
	}
	if ctx.IsSet("http-addr") {
		cfg.HTTPAddr = ctx.String("http-addr")
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if ctx.Bool("once") {
		return once(ctx.Context, client, ctx.App.Writer)
	}
	return run(ctx.Context, cfg, client, logger)
}

func newClient(cfg *config.Config, logger *zap.Logger) (*solarlog.Client, error) {
	loc, err := cfg.SolarlogCfg.Location()
	if err != nil {
		return nil, err
	}
	return solarlog.New(cfg.SolarlogCfg.Host,
		solarlog.WithPassword(cfg.SolarlogCfg.Password),
		solarlog.WithTimeout(cfg.SolarlogCfg.Timeout),
		solarlog.WithLogger(logger),
		solarlog.WithLocation(loc),
		solarlog.WithExpiredMarkers(cfg.SolarlogCfg.ExpiredMarkers...),
		solarlog.WithSessionTTL(cfg.SolarlogCfg.SessionTTL),
		solarlog.WithRequestInterval(cfg.SolarlogCfg.RequestInterval),
		solarlog.WithExtendedData(cfg.SolarlogCfg.Extended),
		solarlog.WithEnabledInverters(cfg.SolarlogCfg.Enabled()),
	)
}

// once prints a single snapshot as JSON.
func once(ctx context.Context, svc SolarlogService, w io.Writer) error {
	snapshot, err := svc.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func run(ctx context.Context, cfg *config.Config, svc SolarlogService, logger *zap.Logger) error {
	if !svc.Ping(ctx) {
		logger.Warn("device did not answer, trying to log in anyway")
	}
	if _, err := svc.Login(ctx); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	var collector *metrics.Collector
	opts := []func(*poller.Poller){
		poller.WithLogger(logger),
		poller.WithObserver(func(err error, took time.Duration) {
			collector.ObservePoll(err, took)
		}),
	}
	if cfg.MqttCfg.Host != "" {
		sink, disconnect, err := mqttSink(cfg.MqttCfg)
		if err != nil {
			return err
		}
		defer disconnect()
		opts = append(opts, poller.WithSink(sink))
	}
	po, err := poller.New(svc, cfg.PollSchedule, opts...)
	if err != nil {
		return err
	}
	collector = metrics.NewCollector(po)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eg.Go(func() error {
		return po.Run(ctx)
	})

	eg.Go(func() error {
		srv := &http.Server{
			Handler:      server.New(po, reg),
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("context done")
		return nil
	}
	return err
}

func mqttSink(cfg config.MqttConfig) (poller.Sink, func(), error) {
	svc := mqtt.New(mqtt.NewClient(cfg.Host, cfg.ClientID, cfg.Username, cfg.Password), cfg.DiscoveryPrefix, cfg.BaseTopic)
	if err := svc.Connect(); err != nil {
		return nil, nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Host, err)
	}
	if err := publisher.RegisterPublisher("mqtt", svc); err != nil {
		return nil, nil, err
	}
	root := model.Device{ID: publisher.Slug(cfg.DeviceName), Name: cfg.DeviceName}
	sink := func(ctx context.Context, snapshot *model.DeviceSnapshot) error {
		return publisher.PublishSnapshot(ctx, root, snapshot)
	}
	return sink, svc.Disconnect, nil
}
