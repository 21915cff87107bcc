// Package daemon runs every configured stream session of the process and
// owns the shared pieces around them: logging, metrics, the metadata
// reporter and the reference board.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/log"
	"firestige.xyz/framestream/internal/metadata"
	"firestige.xyz/framestream/internal/metrics"
	"firestige.xyz/framestream/internal/source"
	"firestige.xyz/framestream/internal/stream"
)

// Daemon manages the framestream process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string // empty when built from an in-memory config
	pidFile    string

	// Core components
	reporter      metadata.Reporter
	board         *stream.Board
	streams       []*stream.Stream
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	done    chan struct{} // closed when every stream goroutine has exited
	sigChan chan os.Signal
	started bool
	stopped bool
}

// New loads the configuration file and creates a daemon.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d := NewWithConfig(cfg)
	d.configPath = configPath
	d.pidFile = pidFile
	return d, nil
}

// NewWithConfig creates a daemon from an already validated configuration.
func NewWithConfig(cfg *config.GlobalConfig) *Daemon {
	d := &Daemon{
		config: cfg,
		board:  stream.NewBoard(),
		done:   make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes shared components and launches one goroutine per stream.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.GetLogger().WithField("config", d.configPath).
		Infof("starting framestream daemon with %d stream(s)", len(d.config.Streams))

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Metadata side channel shared by all streams
	reporter, err := metadata.New(d.config.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create metadata reporter: %w", err)
	}
	d.reporter = reporter

	// 5. One session per stream, each ticking on its own goroutine
	for _, sc := range d.config.Streams {
		st := stream.New(stream.ConfigFrom(sc), source.FromConfig(sc),
			stream.WithReporter(d.reporter),
			stream.WithBoard(d.board),
		)
		d.streams = append(d.streams, st)
		d.wg.Go(func() { d.runStream(st, sc) })
	}

	d.started = true
	go func() {
		if r := d.wg.WaitAndRecover(); r != nil {
			log.GetLogger().Errorf("stream goroutine panicked: %v", r.Value)
		}
		close(d.done)
	}()

	log.GetLogger().Info("daemon started successfully")
	return nil
}

// runStream opens st and ticks it until the daemon stops or the stream is lost.
func (d *Daemon) runStream(st *stream.Stream, sc config.StreamConfig) {
	logger := log.GetLogger().WithField("stream", sc.Name)
	defer st.Close()

	if err := st.Open(d.ctx); err != nil {
		logger.WithError(err).Error("failed to open stream")
		return
	}

	ticker := time.NewTicker(sc.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}

		var ref stream.Reference
		if sc.Reference != "" {
			ref = d.board.Reference(sc.Reference)
		}
		delivered, err := st.Tick(ref)
		if err != nil {
			logger.WithError(err).Warn("stream ended")
			return
		}
		if delivered && logger.IsTraceEnabled() {
			seq, p := st.Delivered()
			logger.Tracef("delivered frame %d, timestamp %d, %d bytes", seq, p.Timestamp, len(p.Payload))
		}
	}
}

// Stop performs graceful shutdown of all daemon components. Idempotent.
func (d *Daemon) Stop() {
	if d.stopped {
		return
	}
	d.stopped = true
	log.GetLogger().Info("initiating graceful shutdown")

	// 1. Stop every stream and wait for its goroutine
	d.cancel()
	if d.started {
		<-d.done
	}

	// 2. Flush the metadata side channel
	if d.reporter != nil {
		if err := d.reporter.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing metadata reporter")
		}
	}

	// 3. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
	}

	// 4. Unregister signal handler
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. Remove PID file
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("daemon stopped gracefully")
	log.Flush()
}

// Run blocks until shutdown is triggered:
//  1. OS signals (SIGTERM, SIGINT)
//  2. every stream has ended (lost transport or finished replay)
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().Infof("received shutdown signal %s", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.done:
			log.GetLogger().Info("all streams ended")
			d.Stop()
			return nil
		}
	}
}

// Reload re-reads the configuration file.
// Hot-reloadable: log level, pattern and appenders.
// Cold (requires restart): streams, metadata, metrics.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no configuration file to reload")
	}
	log.GetLogger().WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	if err := log.Init(newConfig.Log); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	var requiresRestart []string
	if len(newConfig.Streams) != len(d.config.Streams) {
		requiresRestart = append(requiresRestart, "streams")
	}
	if newConfig.Metadata.Reporter != d.config.Metadata.Reporter {
		requiresRestart = append(requiresRestart, "metadata.reporter")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen || newConfig.Metrics.Enabled != d.config.Metrics.Enabled {
		requiresRestart = append(requiresRestart, "metrics")
	}
	d.config.Log = newConfig.Log

	logger := log.GetLogger().WithField("hot_reloaded", "log")
	if len(requiresRestart) > 0 {
		logger = logger.WithField("requires_restart", requiresRestart)
	}
	logger.Info("configuration reloaded")
	return nil
}

// Streams returns the stream sessions created by Start.
func (d *Daemon) Streams() []*stream.Stream { return d.streams }

// Board returns the reference board shared by the streams.
func (d *Daemon) Board() *stream.Board { return d.board }

// Done is closed once every stream goroutine has exited.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Debug("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	log.GetLogger().WithField("path", d.pidFile).Debugf("PID file written, pid %d", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
