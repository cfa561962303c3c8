package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayusman/formcoach/internal/pose"
)

func TestMockDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("returns configured pose", func(t *testing.T) {
		m := NewMockDetector()
		m.SetPose(pose.SquatPose())

		got, err := m.Detect(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, pose.SquatPose(), got)
		assert.Equal(t, 1, m.Calls())
	})

	t.Run("returns configured error", func(t *testing.T) {
		m := NewMockDetector()
		m.SetError(ErrInferenceUnavailable)

		_, err := m.Detect(ctx, nil)
		assert.ErrorIs(t, err, ErrInferenceUnavailable)
	})

	t.Run("delay honours cancellation", func(t *testing.T) {
		m := NewMockDetector()
		m.SetDelay(time.Hour)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := m.Detect(cctx, nil)
		assert.ErrorIs(t, err, ErrInferenceUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNew(t *testing.T) {
	d, err := New(Config{Backend: BackendMock}, nil)
	require.NoError(t, err)
	p, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, p.Empty())

	_, err = New(Config{Backend: "tflite"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Backend: BackendRemote}, nil)
	assert.Error(t, err, "remote backend needs a URL")
}

func TestNew_RemoteChecksHealth(t *testing.T) {
	var healthy atomic.Bool
	var checks atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		checks.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Run("unhealthy service is logged but usable", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		d, err := New(Config{Backend: BackendRemote, RemoteURL: srv.URL, Timeout: time.Second}, zap.New(core))
		require.NoError(t, err)
		defer d.Close()

		assert.Equal(t, int32(1), checks.Load())
		assert.Equal(t, 1, logs.FilterMessage("pose service not healthy").Len())
	})

	t.Run("healthy service logs nothing", func(t *testing.T) {
		healthy.Store(true)
		core, logs := observer.New(zap.WarnLevel)
		d, err := New(Config{Backend: BackendRemote, RemoteURL: srv.URL, Timeout: time.Second}, zap.New(core))
		require.NoError(t, err)
		defer d.Close()

		assert.Equal(t, int32(2), checks.Load())
		assert.Zero(t, logs.Len())
	})
}

func TestWireResponse_ToPose(t *testing.T) {
	resp := wireResponse{
		Score: 0.8,
		Keypoints: []wireKeypoint{
			{Name: "leftKnee", X: 10, Y: 20, Confidence: 0.9},
			{Name: "left_pinky", X: 1, Y: 1, Confidence: 0.9},
			{Name: "leftKnee", X: 99, Y: 99, Confidence: 0.1},
			{Name: "nose", X: 5, Y: 6, Confidence: 0.3},
		},
	}

	p := resp.toPose()
	require.Len(t, p.Keypoints, 2)
	assert.Equal(t, 0.8, p.Score)

	kp, ok := p.Find(pose.LeftKnee)
	require.True(t, ok)
	assert.Equal(t, pose.Point{X: 10, Y: 20}, kp.Position)

	_, ok = p.Find(pose.Nose)
	assert.False(t, ok, "low confidence nose is kept but not usable")
}

// fakeService answers each length-prefixed frame with reply(frame).
func fakeService(t *testing.T, in io.Reader, out io.Writer, reply func([]byte) string) {
	t.Helper()
	for {
		var n uint32
		if err := binary.Read(in, binary.BigEndian, &n); err != nil {
			return
		}
		frame := make([]byte, n)
		if _, err := io.ReadFull(in, frame); err != nil {
			return
		}
		if _, err := io.WriteString(out, reply(frame)+"\n"); err != nil {
			return
		}
	}
}

func TestExchange(t *testing.T) {
	toSvcR, toSvcW := io.Pipe()
	fromSvcR, fromSvcW := io.Pipe()
	defer toSvcW.Close()
	defer fromSvcR.Close()

	var frames [][]byte
	go func() {
		defer fromSvcW.Close()
		fakeService(t, toSvcR, fromSvcW, func(frame []byte) string {
			frames = append(frames, frame)
			if string(frame) == "bad" {
				return `{"error":"decode failed"}`
			}
			return `{"keypoints":[{"name":"rightHip","x":3,"y":4,"confidence":0.95}],"score":0.9}`
		})
	}()

	r := bufio.NewReader(fromSvcR)

	p, err := exchange(toSvcW, r, []byte("jpeg-bytes"))
	require.NoError(t, err)
	kp, ok := p.Find(pose.RightHip)
	require.True(t, ok)
	assert.Equal(t, pose.Point{X: 3, Y: 4}, kp.Position)

	_, err = exchange(toSvcW, r, []byte("bad"))
	assert.EqualError(t, err, "decode failed")

	assert.Equal(t, "jpeg-bytes", string(frames[0]))
}

func TestExchange_ClosedStream(t *testing.T) {
	toSvcR, toSvcW := io.Pipe()
	fromSvcR, fromSvcW := io.Pipe()
	go func() {
		// Consume the request then hang up without answering.
		buf := make([]byte, 64)
		_, _ = toSvcR.Read(buf)
		_, _ = toSvcR.Read(buf)
		fromSvcW.Close()
	}()

	_, err := exchange(toSvcW, bufio.NewReader(fromSvcR), []byte("frame"))
	assert.Error(t, err)
	toSvcW.Close()
}

// stalledDetector returns a SubprocessDetector wired to a pose service that
// reads every request and never answers.
func stalledDetector(t *testing.T) *SubprocessDetector {
	t.Helper()
	toSvcR, toSvcW := io.Pipe()
	fromSvcR, fromSvcW := io.Pipe()
	t.Cleanup(func() { fromSvcW.Close() })
	go func() { _, _ = io.Copy(io.Discard, toSvcR) }()

	return &SubprocessDetector{
		config:     DefaultConfig(),
		logger:     zap.NewNop(),
		stdin:      toSvcW,
		stdout:     bufio.NewReader(fromSvcR),
		stdoutPipe: fromSvcR,
		started:    true,
	}
}

func TestSubprocessDetector_CancelReleasesStalledRequest(t *testing.T) {
	d := stalledDetector(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.send(ctx, []byte("frame"))
		errCh <- err
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrInferenceUnavailable)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancellation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.False(t, d.started, "cancelled exchange should stop the pose service")
}

func TestSubprocessDetector_CloseAfterCancel(t *testing.T) {
	d := stalledDetector(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.send(ctx, []byte("frame"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, d.Close())
}

func newRemote(t *testing.T, url string) *RemoteDetector {
	t.Helper()
	d, err := NewRemoteDetector(Config{
		RemoteURL:  url,
		Timeout:    time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRemoteDetector_Estimate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estimate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req estimateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte("jpeg"), req.ImageData)

		json.NewEncoder(w).Encode(wireResponse{Keypoints: []wireKeypoint{
			{Name: "leftAnkle", X: 1, Y: 2, Confidence: 0.7},
		}})
	}))
	defer srv.Close()

	p, err := newRemote(t, srv.URL+"/").Estimate(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	_, ok := p.Find(pose.LeftAnkle)
	assert.True(t, ok)
}

func TestRemoteDetector_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(wireResponse{})
	}))
	defer srv.Close()

	_, err := newRemote(t, srv.URL).Estimate(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteDetector_Unavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newRemote(t, srv.URL).Estimate(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInferenceUnavailable))
	assert.Contains(t, err.Error(), "model crashed")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteDetector_EmptyFrame(t *testing.T) {
	d := newRemote(t, "http://127.0.0.1:0")
	_, err := d.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
}

func TestRemoteDetector_HealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	d := newRemote(t, srv.URL)
	assert.NoError(t, d.HealthCheck(context.Background()))

	healthy.Store(false)
	assert.Error(t, d.HealthCheck(context.Background()))
}
