// Package config loads formcoach settings from defaults, an optional TOML file
// and FORMCOACH_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/capture"
	"github.com/ayusman/formcoach/internal/detector"
	"github.com/ayusman/formcoach/internal/tracker"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "FORMCOACH_"

type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Camera      CameraConfig   `toml:"camera"`
	Motion      MotionConfig   `toml:"motion"`
	Detector    DetectorConfig `toml:"detector"`
	Tracker     TrackerConfig  `toml:"tracker"`
	Feedback    FeedbackConfig `toml:"feedback"`
	Store       StoreConfig    `toml:"store"`
	Logging     LoggingConfig  `toml:"logging"`
	Metrics     MetricsConfig  `toml:"metrics"`
}

type ServerConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	IdleTimeout  time.Duration `toml:"idle_timeout"`
	StaticDir    string        `toml:"static_dir"`
}

type CameraConfig struct {
	Enabled  bool `toml:"enabled"`
	DeviceID int  `toml:"device_id"`
	Width    int  `toml:"width"`
	Height   int  `toml:"height"`
	FPS      int  `toml:"fps"`
}

type MotionConfig struct {
	Threshold   float64       `toml:"threshold"`
	IdleFPS     int           `toml:"idle_fps"`
	ActiveFPS   int           `toml:"active_fps"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
}

type DetectorConfig struct {
	Backend     string        `toml:"backend"`
	ScriptPath  string        `toml:"script_path"`
	PythonPath  string        `toml:"python_path"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
	RemoteURL   string        `toml:"remote_url"`
	Timeout     time.Duration `toml:"timeout"`
	MaxRetries  int           `toml:"max_retries"`
	RetryDelay  time.Duration `toml:"retry_delay"`
}

type TrackerConfig struct {
	Hysteresis       float64       `toml:"hysteresis"`
	RepDepth         float64       `toml:"rep_depth"`
	StandingDepth    float64       `toml:"standing_depth"`
	FeedbackCooldown time.Duration `toml:"feedback_cooldown"`
}

type FeedbackConfig struct {
	Speech        bool     `toml:"speech"`
	SpeechCommand string   `toml:"speech_command"`
	SpeechArgs    []string `toml:"speech_args"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	File        string `toml:"file"`
	ToStdout    bool   `toml:"to_stdout"`
	MaxSizeMB   int    `toml:"max_size_mb"`
	MaxBackups  int    `toml:"max_backups"`
	MaxAgeDays  int    `toml:"max_age_days"`
	Compression bool   `toml:"compression"`
}

type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	Subsystem string `toml:"subsystem"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	cam := capture.DefaultConfig()
	det := detector.DefaultConfig()
	trk := tracker.DefaultConfig()

	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Camera: CameraConfig{
			Enabled:  true,
			DeviceID: cam.DeviceID,
			Width:    cam.Width,
			Height:   cam.Height,
			FPS:      cam.FPS,
		},
		Motion: MotionConfig{
			Threshold:   capture.DefaultMotionConfig().Threshold,
			IdleFPS:     capture.IdleFPS,
			ActiveFPS:   capture.ActiveFPS,
			IdleTimeout: capture.DefaultIdleTimeout,
		},
		Detector: DetectorConfig{
			Backend:     det.Backend,
			IdleTimeout: det.IdleTimeout,
			RemoteURL:   "http://localhost:5000",
			Timeout:     det.Timeout,
			MaxRetries:  det.MaxRetries,
			RetryDelay:  det.RetryDelay,
		},
		Tracker: TrackerConfig{
			Hysteresis:       trk.Hysteresis,
			RepDepth:         trk.RepDepth,
			StandingDepth:    trk.StandingDepth,
			FeedbackCooldown: trk.FeedbackCooldown,
		},
		Feedback: FeedbackConfig{
			Speech: true,
		},
		Store: StoreConfig{
			Path: "formcoach.db",
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "console",
			ToStdout:    true,
			MaxSizeMB:   50,
			MaxBackups:  3,
			MaxAgeDays:  28,
			Compression: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "formcoach",
			Subsystem: "coach",
		},
	}
}

// Load builds a Config from Defaults, overlays the TOML file at path when path
// is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvAsDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.StaticDir = getEnv("SERVER_STATIC_DIR", c.Server.StaticDir)

	c.Camera.Enabled = getEnvAsBool("CAMERA_ENABLED", c.Camera.Enabled)
	c.Camera.DeviceID = getEnvAsInt("CAMERA_DEVICE_ID", c.Camera.DeviceID)
	c.Camera.Width = getEnvAsInt("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = getEnvAsInt("CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FPS = getEnvAsInt("CAMERA_FPS", c.Camera.FPS)

	c.Motion.Threshold = getEnvAsFloat("MOTION_THRESHOLD", c.Motion.Threshold)
	c.Motion.IdleFPS = getEnvAsInt("MOTION_IDLE_FPS", c.Motion.IdleFPS)
	c.Motion.ActiveFPS = getEnvAsInt("MOTION_ACTIVE_FPS", c.Motion.ActiveFPS)
	c.Motion.IdleTimeout = getEnvAsDuration("MOTION_IDLE_TIMEOUT", c.Motion.IdleTimeout)

	c.Detector.Backend = getEnv("DETECTOR_BACKEND", c.Detector.Backend)
	c.Detector.ScriptPath = getEnv("DETECTOR_SCRIPT_PATH", c.Detector.ScriptPath)
	c.Detector.PythonPath = getEnv("DETECTOR_PYTHON_PATH", c.Detector.PythonPath)
	c.Detector.IdleTimeout = getEnvAsDuration("DETECTOR_IDLE_TIMEOUT", c.Detector.IdleTimeout)
	c.Detector.RemoteURL = getEnv("DETECTOR_REMOTE_URL", c.Detector.RemoteURL)
	c.Detector.Timeout = getEnvAsDuration("DETECTOR_TIMEOUT", c.Detector.Timeout)
	c.Detector.MaxRetries = getEnvAsInt("DETECTOR_MAX_RETRIES", c.Detector.MaxRetries)
	c.Detector.RetryDelay = getEnvAsDuration("DETECTOR_RETRY_DELAY", c.Detector.RetryDelay)

	c.Tracker.Hysteresis = getEnvAsFloat("TRACKER_HYSTERESIS", c.Tracker.Hysteresis)
	c.Tracker.RepDepth = getEnvAsFloat("TRACKER_REP_DEPTH", c.Tracker.RepDepth)
	c.Tracker.StandingDepth = getEnvAsFloat("TRACKER_STANDING_DEPTH", c.Tracker.StandingDepth)
	c.Tracker.FeedbackCooldown = getEnvAsDuration("TRACKER_FEEDBACK_COOLDOWN", c.Tracker.FeedbackCooldown)

	c.Feedback.Speech = getEnvAsBool("FEEDBACK_SPEECH", c.Feedback.Speech)
	c.Feedback.SpeechCommand = getEnv("FEEDBACK_SPEECH_COMMAND", c.Feedback.SpeechCommand)
	c.Feedback.SpeechArgs = getEnvAsStringSlice("FEEDBACK_SPEECH_ARGS", c.Feedback.SpeechArgs)

	c.Store.Path = getEnv("STORE_PATH", c.Store.Path)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
	c.Logging.ToStdout = getEnvAsBool("LOG_TO_STDOUT", c.Logging.ToStdout)
	c.Logging.MaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", c.Logging.MaxSizeMB)

	c.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Namespace = getEnv("METRICS_NAMESPACE", c.Metrics.Namespace)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate(logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errors []string

	if c.Server.Addr == "" {
		errors = append(errors, "server addr is required")
	}

	if c.Camera.Enabled {
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
			errors = append(errors, "camera resolution must be positive")
		}
		if c.Camera.FPS <= 0 {
			errors = append(errors, "camera fps must be positive")
		}
	}

	if c.Motion.IdleFPS <= 0 || c.Motion.ActiveFPS <= 0 {
		errors = append(errors, "motion frame rates must be positive")
	} else if c.Motion.IdleFPS > c.Motion.ActiveFPS {
		logger.Warn("idle frame rate is higher than active frame rate",
			zap.Int("idle_fps", c.Motion.IdleFPS), zap.Int("active_fps", c.Motion.ActiveFPS))
	}

	switch c.Detector.Backend {
	case detector.BackendMock, detector.BackendSubprocess:
	case detector.BackendRemote:
		if c.Detector.RemoteURL == "" {
			errors = append(errors, "detector remote_url is required for the remote backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown detector backend %q", c.Detector.Backend))
	}
	if c.Detector.MaxRetries < 0 {
		errors = append(errors, "detector max_retries must not be negative")
	}

	if c.Tracker.Hysteresis < 0 {
		errors = append(errors, "tracker hysteresis must not be negative")
	}
	if c.Tracker.StandingDepth >= c.Tracker.RepDepth {
		errors = append(errors, "tracker standing_depth must be below rep_depth")
	}
	if c.Tracker.FeedbackCooldown < 0 {
		errors = append(errors, "tracker feedback_cooldown must not be negative")
	}

	if c.Store.Path == "" {
		logger.Warn("store path not set, workout sessions will not be saved")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errors = append(errors, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errors = append(errors, "metrics namespace is required when metrics are enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

// CaptureConfig converts the camera section for capture.NewCamera.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.DeviceID,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.FPS,
	}
}

// MotionDetectorConfig converts the motion section for capture.NewMotionDetector.
func (c *Config) MotionDetectorConfig() capture.MotionConfig {
	m := capture.DefaultMotionConfig()
	m.Threshold = c.Motion.Threshold
	return m
}

// DetectorConfig converts the detector section for detector.New.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		Backend:     c.Detector.Backend,
		ScriptPath:  c.Detector.ScriptPath,
		PythonPath:  c.Detector.PythonPath,
		IdleTimeout: c.Detector.IdleTimeout,
		RemoteURL:   c.Detector.RemoteURL,
		Timeout:     c.Detector.Timeout,
		MaxRetries:  c.Detector.MaxRetries,
		RetryDelay:  c.Detector.RetryDelay,
	}
}

// TrackerConfig converts the tracker section for tracker.Update.
func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		Hysteresis:       c.Tracker.Hysteresis,
		RepDepth:         c.Tracker.RepDepth,
		StandingDepth:    c.Tracker.StandingDepth,
		FeedbackCooldown: c.Tracker.FeedbackCooldown,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
