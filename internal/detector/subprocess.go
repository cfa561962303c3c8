package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/formcoach/internal/pose"
)

const poseScriptName = "pose_service.py"

// SubprocessDetector implements Detector using a Python pose estimation
// subprocess. Frames are written to its stdin as a 4-byte big-endian length
// followed by JPEG data; each frame is answered with one JSON line.
type SubprocessDetector struct {
	config     Config
	scriptPath string
	pythonPath string
	logger     *zap.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	stdoutPipe io.Closer
	started    bool
	idleTimer  *time.Timer
}

// NewSubprocessDetector creates a new subprocess detector.
// The Python process is started lazily on first detection.
func NewSubprocessDetector(config Config, logger *zap.Logger) (*SubprocessDetector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scriptPath := config.ScriptPath
	if scriptPath == "" {
		scriptPath = findPoseScript()
	}
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", poseScriptName)
	}

	pythonPath := config.PythonPath
	if pythonPath == "" {
		pythonPath = findVenvPython()
	}
	if pythonPath == "" {
		pythonPath = "python3"
	}

	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}

	return &SubprocessDetector{
		config:     config,
		scriptPath: scriptPath,
		pythonPath: pythonPath,
		logger:     logger,
	}, nil
}

// Detect sends the frame to the pose service and waits for its keypoints.
func (d *SubprocessDetector) Detect(ctx context.Context, frame *gocv.Mat) (pose.Pose, error) {
	if err := ctx.Err(); err != nil {
		return pose.Pose{}, unavailable("detect", err)
	}

	data, err := encodeFrame(frame)
	if err != nil {
		return pose.Pose{}, unavailable("detect", err)
	}

	return d.send(ctx, data)
}

type exchangeResult struct {
	pose pose.Pose
	err  error
}

// send runs one exchange with the pose service. Cancelling ctx kills the
// service, since a half-finished exchange leaves the stream out of sync.
func (d *SubprocessDetector) send(ctx context.Context, data []byte) (pose.Pose, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return pose.Pose{}, unavailable("start pose service", err)
	}

	done := make(chan exchangeResult, 1)
	stdin, stdout := d.stdin, d.stdout
	go func() {
		p, err := exchange(stdin, stdout, data)
		done <- exchangeResult{pose: p, err: err}
	}()

	var res exchangeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		d.abort()
		<-done
		d.logger.Info("pose request cancelled, stopping pose service")
		if serr := d.shutdown(); serr != nil {
			d.logger.Debug("pose service exit", zap.Error(serr))
		}
		return pose.Pose{}, unavailable("detect", ctx.Err())
	}

	if res.err != nil {
		// The stream is out of sync after a failed exchange; restart next time.
		d.logger.Warn("pose service exchange failed, restarting", zap.Error(res.err))
		if serr := d.shutdown(); serr != nil {
			d.logger.Debug("pose service exit", zap.Error(serr))
		}
		return pose.Pose{}, unavailable("detect", res.err)
	}

	d.resetIdleTimer()
	return res.pose, nil
}

// abort unblocks an exchange in progress.
func (d *SubprocessDetector) abort() {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	if d.stdin != nil {
		d.stdin.Close()
	}
	if d.stdoutPipe != nil {
		d.stdoutPipe.Close()
	}
}

// Close shuts down the Python process.
func (d *SubprocessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// exchange writes one length-prefixed frame and reads one response line.
func exchange(w io.Writer, r *bufio.Reader, data []byte) (pose.Pose, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return pose.Pose{}, fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return pose.Pose{}, fmt.Errorf("write data: %w", err)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return pose.Pose{}, fmt.Errorf("read response: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return pose.Pose{}, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return pose.Pose{}, errors.New(resp.Error)
	}
	return resp.toPose(), nil
}

func (d *SubprocessDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.pythonPath, d.scriptPath)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.logger.Info("pose service started",
		zap.String("python", d.pythonPath),
		zap.String("script", d.scriptPath),
		zap.Int("pid", d.cmd.Process.Pid))

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.stdoutPipe = stdout
	d.started = true
	return nil
}

func (d *SubprocessDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	var err error
	if d.cmd != nil {
		err = d.cmd.Wait()
	} else if d.stdoutPipe != nil {
		err = d.stdoutPipe.Close()
	}
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.stdoutPipe = nil

	return err
}

func (d *SubprocessDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.logger.Info("pose service idle, stopping")
		d.shutdown()
	})
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", poseScriptName),
		filepath.Join("..", "scripts", poseScriptName),
		filepath.Join(execDir, "scripts", poseScriptName),
		filepath.Join(os.Getenv("HOME"), ".formcoach", "scripts", poseScriptName),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".formcoach/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
