package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/formcoach/internal/pose"
)

// RemoteDetector implements Detector against an HTTP pose estimation service.
type RemoteDetector struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     Config
}

type estimateRequest struct {
	ImageData []byte `json:"image_data"`
	Timestamp int64  `json:"timestamp"`
}

// NewRemoteDetector creates a detector that posts frames to cfg.RemoteURL.
func NewRemoteDetector(cfg Config, logger *zap.Logger) (*RemoteDetector, error) {
	if cfg.RemoteURL == "" {
		return nil, errors.New("remote detector requires a URL")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &RemoteDetector{
		baseURL: strings.TrimRight(cfg.RemoteURL, "/"),
		logger:  logger,
		config:  cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}, nil
}

// Detect encodes the frame and estimates its pose remotely.
func (d *RemoteDetector) Detect(ctx context.Context, frame *gocv.Mat) (pose.Pose, error) {
	data, err := encodeFrame(frame)
	if err != nil {
		return pose.Pose{}, unavailable("detect", err)
	}
	return d.Estimate(ctx, data)
}

// Estimate sends an already encoded JPEG to the service, retrying failed
// attempts with a linearly growing delay.
func (d *RemoteDetector) Estimate(ctx context.Context, jpeg []byte) (pose.Pose, error) {
	body, err := json.Marshal(estimateRequest{ImageData: jpeg, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return pose.Pose{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			d.logger.Warn("retrying pose estimation request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			timer := time.NewTimer(d.config.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return pose.Pose{}, unavailable("estimate", ctx.Err())
			case <-timer.C:
			}
		}

		p, err := d.execute(ctx, body)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return pose.Pose{}, unavailable(
		fmt.Sprintf("estimate failed after %d attempts", d.config.MaxRetries+1), lastErr)
}

func (d *RemoteDetector) execute(ctx context.Context, body []byte) (pose.Pose, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/estimate", bytes.NewReader(body))
	if err != nil {
		return pose.Pose{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "formcoach/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return pose.Pose{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return pose.Pose{}, fmt.Errorf("pose service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pose.Pose{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return pose.Pose{}, errors.New(out.Error)
	}
	return out.toPose(), nil
}

// HealthCheck asks the service whether it is ready.
func (d *RemoteDetector) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (d *RemoteDetector) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
