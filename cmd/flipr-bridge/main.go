package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/cache"
	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/homekit"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/logging"
	"github.com/joshp123/gohome-flipr/internal/mqttbridge"
	"github.com/joshp123/gohome-flipr/internal/oauth"
	"github.com/joshp123/gohome-flipr/internal/plugins"
	"github.com/joshp123/gohome-flipr/internal/rate"
	"github.com/joshp123/gohome-flipr/internal/router"
	"github.com/joshp123/gohome-flipr/internal/scheduler"
	"github.com/joshp123/gohome-flipr/internal/server"
)

var version = "dev"

type options struct {
	Config   string `short:"c" long:"config" env:"GOHOME_FLIPR_CONFIG" description:"path to the YAML or TOML config file" default:"/etc/gohome-flipr/config.yaml"`
	LogLevel string `long:"log-level" env:"GOHOME_FLIPR_LOG_LEVEL" description:"override log.level from the config" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	Version  bool   `long:"version" description:"print the version and exit"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "flipr-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := cache.New(cfg.Bridge.Cache)
	if err != nil {
		return fmt.Errorf("accessory cache: %w", err)
	}

	sink, err := historySink(cfg.History.Influx)
	if err != nil {
		return err
	}
	defer sink.Close()

	sched := scheduler.NewCron()
	defer sched.Stop()

	bridge := host.NewBridge(store, log.Named("bridge"))
	enabled := plugins.Compiled(cfg, core.Env{
		Bridge:    bridge,
		Scheduler: sched,
		History:   sink,
		Log:       log,
	})
	if err := core.ValidatePlugins(enabled); err != nil {
		return fmt.Errorf("plugin validation: %w", err)
	}
	if err := core.WriteDashboards(cfg.Core.DashboardDir, enabled); err != nil {
		log.Warnw("write dashboards", "dir", cfg.Core.DashboardDir, "err", err)
	}

	registry := core.NewRegistry(enabled)
	shared := append(oauth.MetricsCollectors(), rate.MetricsCollectors()...)
	shared = append(shared, core.BuildInfo(version))
	metrics := core.MetricsRegistry(enabled, shared...)

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	hs := router.RegisterPlugins(grpcServer.Server, enabled)
	syncEvery, err := cfg.Core.HealthSync()
	if err != nil {
		return err
	}
	if _, err := router.ScheduleHealthSync(sched, scheduler.Every(syncEvery), hs, enabled); err != nil {
		return fmt.Errorf("schedule health sync: %w", err)
	}

	accessLog := zap.NewStdLog(log.Desugar().Named("http")).Writer()
	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewRouter(registry, metrics, accessLog))

	runtime, err := selectRuntime(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		log.Infow("http listening", "addr", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		log.Infow("grpc listening", "addr", cfg.Core.GRPCAddr)
		if err := grpcServer.Serve(); err != nil {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-errs:
			log.Errorw("server stopped", "err", err)
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Infow("starting flipr bridge", "version", version, "runtime", cfg.Bridge.Runtime)
	runErr := bridge.Run(runCtx, runtime, core.Platforms(enabled)...)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	grpcServer.Stop()

	log.Infow("flipr bridge stopped")
	return runErr
}

func selectRuntime(cfg *config.Config, log *zap.SugaredLogger) (host.Runtime, error) {
	switch cfg.Bridge.Runtime {
	case config.RuntimeHomeKit:
		return homekit.New(cfg.Bridge.HomeKit, version, log.Named("homekit")), nil
	case config.RuntimeMQTT:
		return mqttbridge.New(cfg.Bridge.MQTT, log.Named("mqtt")), nil
	case config.RuntimeNone:
		return host.NopRuntime{}, nil
	default:
		return nil, fmt.Errorf("unknown bridge runtime %q", cfg.Bridge.Runtime)
	}
}

func historySink(cfg config.InfluxConfig) (history.Sink, error) {
	if !cfg.Enabled() {
		return history.Discard{}, nil
	}
	sink, err := history.NewInfluxSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("influx history: %w", err)
	}
	return sink, nil
}
