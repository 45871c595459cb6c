package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lutzky/sensormon/internal/config"
	"github.com/lutzky/sensormon/internal/monitor"
	"github.com/lutzky/sensormon/internal/sensor"
	"github.com/lutzky/sensormon/internal/state"
	"github.com/lutzky/sensormon/internal/web"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file; hardware defaults if empty")
	demo       = flag.Bool("demo", false, "Use counter producers instead of hardware")
	flagPort   = flag.Int("port", 0, "HTTP listening port; overrides config")
	delay      = flag.Duration("delay", 0, "Automatically quit after delay")
	verbose    = flag.Bool("verbose", false, "Debug logging")
)

var lg = logger.NewPackageLogger("main", logger.InfoLevel)

var packages = []string{"main", "sensor", "monitor", "web"}

func main() {
	flag.Parse()

	if *verbose {
		for _, p := range packages {
			logger.ChangePackageLogLevel(p, logger.DebugLevel)
		}
	}

	err := start()
	// Flush before os.Exit.
	logger.FinalizeLogger()
	if err != nil {
		os.Exit(1)
	}
}

// start loads the configuration and runs until stopped. Errors are logged
// before being returned.
func start() error {
	cfg, err := loadConfig()
	if err != nil {
		lg.Errorf("Config: %v", err)
		return err
	}
	if *flagPort > 0 {
		cfg.HTTP.Port = *flagPort
	}

	if err := run(cfg); err != nil {
		lg.Errorf("%v", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	switch {
	case *demo:
		return config.Demo(), nil
	case *configPath != "":
		return config.Load(*configPath)
	default:
		return config.Default(), nil
	}
}

func run(cfg *config.Config) error {
	shared := state.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	metrics := sensor.NewMetrics(reg)

	producers, closers, items, err := buildProducers(cfg, shared, metrics)
	defer closeAll(closers)
	if err != nil {
		return err
	}

	sinks, sinkClosers, err := buildSinks(cfg, items, reg)
	defer closeAll(sinkClosers)
	if err != nil {
		return err
	}
	mon := monitor.New(shared, config.Ms(cfg.Monitor.IntervalMs), sinks...)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: web.NewHandler(shared, items, reg),
	}
	go func() {
		lg.Infof("Serving HTTP on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Errorf("HTTP server failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(interrupted)

	go func() {
		var timeout <-chan time.Time
		if *delay > 0 {
			timeout = time.After(*delay)
		}
		select {
		case sig := <-interrupted:
			lg.Infof("Received %v, stopping", sig)
		case <-timeout:
			lg.Infof("Delay of %v elapsed, stopping", *delay)
		case <-shared.Done():
		}
		shared.Stop()
		cancel()
	}()

	var g errgroup.Group
	for _, p := range producers {
		p := p
		g.Go(func() error { return p.Run(ctx, shared) })
	}
	g.Go(mon.Run)

	err = g.Wait()
	lg.Infof("All loops stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		lg.Errorf("Failed to cleanly shut down HTTP server: %v", serr)
	}
	return err
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			lg.Warningf("Close failed: %v", err)
		}
	}
}
