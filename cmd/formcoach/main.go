package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/capture"
	"github.com/ayusman/formcoach/internal/coach"
	"github.com/ayusman/formcoach/internal/config"
	"github.com/ayusman/formcoach/internal/detector"
	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/feedback"
	"github.com/ayusman/formcoach/internal/logging"
	"github.com/ayusman/formcoach/internal/metrics"
	"github.com/ayusman/formcoach/internal/overlay"
	"github.com/ayusman/formcoach/internal/server"
	"github.com/ayusman/formcoach/internal/store"
	"github.com/ayusman/formcoach/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	withTray := flag.Bool("tray", false, "show a system tray menu")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.SetupParams{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		FileName:    cfg.Logging.File,
		ToStdout:    cfg.Logging.ToStdout,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
		Compression: cfg.Logging.Compression,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(logger); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger, *withTray); err != nil {
		logger.Error("formcoach exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, withTray bool) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting formcoach", zap.String("environment", cfg.Environment))

	var (
		m        *metrics.Manager
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		m = metrics.NewManager(cfg.Metrics.Namespace, cfg.Metrics.Subsystem, prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	}

	st, err := openStore(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	// The live handler needs the coach, so the sink reaches it through this
	// variable. It is set before anything can announce.
	var live *server.LiveHandler
	sinks := feedback.Tee{
		feedback.NewLogSink(logger),
		feedback.FuncSink(func(text string) bool {
			if live == nil {
				return false
			}
			return live.Announce(text)
		}),
	}
	if cfg.Feedback.Speech {
		speech := feedback.NewSpeechSink(cfg.Feedback.SpeechCommand, cfg.Feedback.SpeechArgs, logger)
		defer func() { err = multierr.Append(err, speech.Close()) }()
		sinks = append(sinks, speech)
	}

	registry := exercise.DefaultRegistry()
	c := coach.New(coach.Config{
		Tracker:  cfg.TrackerConfig(),
		Registry: registry,
		Sink:     sinks,
		Store:    st,
		Metrics:  m,
		Logger:   logger.Named("coach"),
	})
	defer func() { err = multierr.Append(err, c.Close()) }()

	var (
		frames   *overlay.Broadcaster
		pipeline *coach.Pipeline
		det      detector.Detector
	)
	if cfg.Camera.Enabled {
		pipeline, frames, det = newPipeline(cfg, c, m, logger)
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", zap.String("dir", staticDir))
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Coach:     c,
		Store:     st,
		Registry:  registry,
		Frames:    frames,
		Gatherer:  gatherer,
		Logger:    logger.Named("http"),
	})
	live = srv.Live()
	defer func() { err = multierr.Append(err, live.Close()) }()

	if pipeline != nil {
		if err := pipeline.Start(ctx); err != nil {
			// Without a camera, browser clients can still drive sessions.
			logger.Warn("camera unavailable, continuing without capture", zap.Error(err))
			_ = det.Close()
			pipeline = nil
		} else {
			defer func() { err = multierr.Append(err, pipeline.Stop()) }()
		}
	}

	httpServer := srv.HTTPServer(cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if withTray {
		runTray(ctx, c, pipeline, registry, "http://"+cfg.Server.Addr, stop, logger)
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newPipeline builds the camera pipeline and the detector it owns. Without a
// usable pose detector it returns nils and the server runs without capture.
func newPipeline(cfg *config.Config, c *coach.Coach, m *metrics.Manager, logger *zap.Logger) (*coach.Pipeline, *overlay.Broadcaster, detector.Detector) {
	det, err := detector.New(cfg.DetectorConfig(), logger.Named("detector"))
	if err != nil {
		logger.Warn("pose detector unavailable, continuing without capture",
			zap.String("backend", cfg.Detector.Backend), zap.Error(err))
		return nil, nil, nil
	}

	frames := overlay.NewBroadcaster()
	pipeline := coach.NewPipeline(c, coach.PipelineConfig{
		Camera:   capture.NewCamera(cfg.CaptureConfig()),
		Motion:   capture.NewMotionDetector(cfg.MotionDetectorConfig()),
		Gate:     capture.NewGate(cfg.Motion.IdleFPS, cfg.Motion.ActiveFPS, cfg.Motion.IdleTimeout),
		Detector: det,
		Frames:   frames,
		Metrics:  m,
		Logger:   logger.Named("pipeline"),
	})
	return pipeline, frames, det
}

func openStore(path string, logger *zap.Logger) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(path, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// runTray blocks on the tray menu until it is quit.
func runTray(ctx context.Context, c *coach.Coach, p *coach.Pipeline, registry exercise.Registry, url string, quit func(), logger *zap.Logger) {
	var names []string
	for _, k := range exercise.Kinds() {
		if registry.Has(k.String()) {
			names = append(names, k.String())
		}
	}

	t := tray.New(names)
	t.OnToggle(func(enabled bool) {
		if p != nil {
			p.SetEnabled(enabled)
		}
		logger.Info("coaching toggled", zap.Bool("enabled", enabled))
	})
	t.OnExercise(func(name string) {
		if _, err := c.StartSession(name); err != nil {
			logger.Warn("failed to start session", zap.Error(err))
			return
		}
		t.SetStatus(name, 0)
	})
	t.OnEnd(func() {
		if _, err := c.EndSession(); err != nil && !errors.Is(err, coach.ErrNoActiveSession) {
			logger.Warn("failed to end session", zap.Error(err))
		}
		t.SetStatus("", 0)
	})
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			logger.Warn("failed to open browser", zap.String("url", url), zap.Error(err))
		}
	})
	t.OnQuit(quit)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	unsubscribe := c.Subscribe(func(u coach.Update) {
		t.SetStatus(u.Exercise, u.State.RepCount)
	})
	defer unsubscribe()

	t.Run()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.formcoach/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".formcoach", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
