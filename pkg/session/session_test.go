package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixkit/camcast/pkg/engine"
)

var (
	_ engine.Recorder = (*fakeEngine)(nil)
	_ engine.Live     = (*fakeEngine)(nil)
)

// fakeEngine implements engine.Recorder and engine.Live with injectable
// failures, recording every call it receives. The call log is guarded, the
// controller invokes it from more than one goroutine.
type fakeEngine struct {
	camera string
	output string

	mu    sync.Mutex
	calls []string

	configureErr error
	captureErr   error
	streamErr    error
	stopErr      error
	connectErr   error
	connectHang  bool

	onError   func(source, message string)
	onLost    func(string)
	onFailed  func(string)
	onSuccess func()
}

func (e *fakeEngine) Configure(_ engine.AudioParams, _ engine.VideoParams) error {
	e.record("configure")
	return e.configureErr
}

func (e *fakeEngine) StartCapture(_ engine.Surface) error {
	e.record("startCapture")
	return e.captureErr
}

func (e *fakeEngine) StopCapture() {
	e.record("stopCapture")
}

func (e *fakeEngine) StartStream() error {
	e.record("startStream")
	return e.streamErr
}

func (e *fakeEngine) StopStream() error {
	e.record("stopStream")
	return e.stopErr
}

func (e *fakeEngine) Camera() string { return e.camera }

func (e *fakeEngine) SetCamera(id string) { e.camera = id }

func (e *fakeEngine) Release() {
	e.record("release")
}

func (e *fakeEngine) OnError(f func(source, message string)) { e.onError = f }

func (e *fakeEngine) SetOutput(path string) {
	e.output = path
	e.record("setOutput")
}

func (e *fakeEngine) Connect(ctx context.Context, host string, port uint16) error {
	e.record("connect")
	if e.connectHang {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.connectErr
}

func (e *fakeEngine) Disconnect() {
	e.record("disconnect")
}

func (e *fakeEngine) OnLost(f func(string)) { e.onLost = f }

func (e *fakeEngine) OnFailed(f func(string)) { e.onFailed = f }

func (e *fakeEngine) OnSuccess(f func()) { e.onSuccess = f }

func (e *fakeEngine) record(name string) {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.mu.Unlock()
}

func (e *fakeEngine) called(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range e.calls {
		if c == name {
			n++
		}
	}
	return n
}

func fileConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.Output.Kind = KindFile
	cfg.Output.Dir = dir
	cfg.Output.Filename = "out.ts"
	return cfg
}

func liveConfig() Config {
	cfg := DefaultConfig()
	cfg.Output.Kind = KindLive
	cfg.Output.Host = "10.0.0.5"
	cfg.Output.Port = 9000
	cfg.Output.Timeout = 1
	return cfg
}

func newTestController(cfg Config) (*Controller, *fakeEngine) {
	eng := &fakeEngine{}
	ctl := New(cfg, func(*Config) (engine.Engine, error) { return eng, nil })
	return ctl, eng
}

func requireNoEvents(t *testing.T, ctl *Controller) {
	t.Helper()
	select {
	case ev := <-ctl.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func requireEvent(t *testing.T, ctl *Controller, source string) ErrorEvent {
	t.Helper()
	select {
	case ev := <-ctl.Events():
		require.Equal(t, source, ev.Source)
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event with source %q", source)
		return ErrorEvent{}
	}
}

func TestFileScenario(t *testing.T) {
	dir := t.TempDir()
	ctl, eng := newTestController(fileConfig(dir))

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	require.Equal(t, StateStreaming, ctl.State())
	require.Equal(t, dir+"/out.ts", eng.output)
	require.Equal(t, dir+"/out.ts", ctl.Endpoint())
	requireNoEvents(t, ctl)
}

func TestLiveConnectFailed(t *testing.T) {
	ctl, eng := newTestController(liveConfig())
	eng.connectErr = errors.New("connection refused")

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	require.Equal(t, StatePreviewing, ctl.State())
	ev := requireEvent(t, ctl, "startStream")
	require.Contains(t, ev.Message, "connection refused")
	requireNoEvents(t, ctl)
	require.Zero(t, eng.called("startStream"))
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		prep func(ctl *Controller)
		op   func(ctl *Controller) error
	}{
		{"configure before create", func(*Controller) {}, (*Controller).Configure},
		{"capture before configure", func(ctl *Controller) {
			_ = ctl.Create()
		}, func(ctl *Controller) error { return ctl.StartCapture(bytes.NewBuffer(nil)) }},
		{"stream before capture", func(ctl *Controller) {
			_ = ctl.Create()
			_ = ctl.Configure()
		}, (*Controller).StartStream},
		{"double create", func(ctl *Controller) {
			_ = ctl.Create()
		}, (*Controller).Create},
		{"stop stream uninitialized", func(*Controller) {}, (*Controller).StopStream},
		{"stop capture while streaming", func(ctl *Controller) {
			_ = ctl.Create()
			_ = ctl.Configure()
			_ = ctl.StartCapture(bytes.NewBuffer(nil))
			_ = ctl.StartStream()
		}, (*Controller).StopCapture},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctl, eng := newTestController(fileConfig(t.TempDir()))
			tc.prep(ctl)

			state := ctl.State()
			calls := len(eng.calls)

			err := tc.op(ctl)
			require.ErrorIs(t, err, ErrInvalidState)
			require.Equal(t, state, ctl.State())
			require.Len(t, eng.calls, calls) // no engine call made
			requireNoEvents(t, ctl)
		})
	}
}

func TestConfigureEngineFailure(t *testing.T) {
	ctl, eng := newTestController(fileConfig(t.TempDir()))
	eng.configureErr = errors.New("no such encoder")

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())

	require.Equal(t, StateCreated, ctl.State())
	requireEvent(t, ctl, "configure")

	// retry after the engine recovers
	eng.configureErr = nil
	require.NoError(t, ctl.Configure())
	require.Equal(t, StateConfigured, ctl.State())
}

func TestStartStreamPrepareFailure(t *testing.T) {
	cfg := fileConfig("") // no storage dir
	ctl, eng := newTestController(cfg)

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	require.Equal(t, StatePreviewing, ctl.State())
	ev := requireEvent(t, ctl, "startStream")
	require.Contains(t, ev.Message, "storage dir")
	require.Zero(t, eng.called("startStream")) // never reached the engine
}

func TestStopStreamIdempotent(t *testing.T) {
	ctl, eng := newTestController(fileConfig(t.TempDir()))

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	require.NoError(t, ctl.StopStream())
	require.Equal(t, StatePreviewing, ctl.State())
	require.Equal(t, 1, eng.called("stopStream"))

	// redundant stop must not raise and must not reach the engine again
	require.NoError(t, ctl.StopStream())
	require.Equal(t, StatePreviewing, ctl.State())
	require.Equal(t, 1, eng.called("stopStream"))
}

func TestStopStreamAlwaysDisconnects(t *testing.T) {
	ctl, eng := newTestController(liveConfig())
	eng.stopErr = errors.New("encoder stuck")

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())
	require.Equal(t, StateStreaming, ctl.State())

	require.NoError(t, ctl.StopStream())
	require.Equal(t, StatePreviewing, ctl.State())
	require.Equal(t, 1, eng.called("disconnect"))
	requireEvent(t, ctl, "stopStream")
}

func TestStopStreamDuringConnect(t *testing.T) {
	ctl, eng := newTestController(liveConfig())
	eng.connectHang = true

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))

	done := make(chan struct{})
	go func() {
		_ = ctl.StartStream()
		close(done)
	}()

	// wait for the connect attempt to block
	require.Eventually(t, func() bool {
		return eng.called("connect") == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ctl.StopStream())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connect was not abandoned")
	}

	require.Equal(t, StatePreviewing, ctl.State())
	requireEvent(t, ctl, "startStream")
}

func TestReleaseDuringConnect(t *testing.T) {
	ctl, eng := newTestController(liveConfig())
	eng.connectHang = true

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))

	done := make(chan struct{})
	go func() {
		_ = ctl.StartStream()
		close(done)
	}()

	require.Eventually(t, func() bool {
		return eng.called("connect") == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ctl.Release())
	<-done

	require.Equal(t, StateReleased, ctl.State())
	require.Equal(t, 1, eng.called("release"))
}

func TestReleaseForeclosesEverything(t *testing.T) {
	ctl, eng := newTestController(fileConfig(t.TempDir()))

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Release())
	require.Equal(t, 1, eng.called("release"))

	require.ErrorIs(t, ctl.Create(), ErrInvalidState)
	require.ErrorIs(t, ctl.Configure(), ErrInvalidState)
	require.ErrorIs(t, ctl.StartCapture(bytes.NewBuffer(nil)), ErrInvalidState)
	require.ErrorIs(t, ctl.StartStream(), ErrInvalidState)
	require.ErrorIs(t, ctl.StopStream(), ErrInvalidState)
	require.ErrorIs(t, ctl.Release(), ErrInvalidState)

	_, err := ctl.ToggleCamera()
	require.ErrorIs(t, err, ErrInvalidState)

	// nothing was forwarded to the released engine
	require.Equal(t, 1, eng.called("release"))
	require.Zero(t, eng.called("configure"))
}

func TestReleaseWhileStreaming(t *testing.T) {
	ctl, eng := newTestController(liveConfig())

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	require.NoError(t, ctl.Release())
	require.Equal(t, 1, eng.called("stopStream"))
	require.Equal(t, 1, eng.called("disconnect"))
	require.Equal(t, 1, eng.called("release"))
}

func TestToggleCamera(t *testing.T) {
	ctl, eng := newTestController(fileConfig(t.TempDir()))

	require.NoError(t, ctl.Create())
	require.Equal(t, engine.CameraFront, ctl.Camera())

	id, err := ctl.ToggleCamera()
	require.NoError(t, err)
	require.Equal(t, engine.CameraBack, id)

	id, err = ctl.ToggleCamera()
	require.NoError(t, err)
	require.Equal(t, engine.CameraFront, id) // toggle(toggle(id)) == id

	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))
	require.NoError(t, ctl.StartStream())

	_, err = ctl.ToggleCamera()
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, engine.CameraFront, eng.camera)
}

func TestAsyncEngineError(t *testing.T) {
	ctl, eng := newTestController(liveConfig())

	require.NoError(t, ctl.Create())

	eng.onError("engine", "pipeline died")
	ev := requireEvent(t, ctl, "engine")
	require.Equal(t, "pipeline died", ev.Message)

	eng.onLost("peer closed")
	requireEvent(t, ctl, SourceConnectionLost)

	eng.onFailed("handshake rejected")
	requireEvent(t, ctl, SourceConnectionFailed)
}

func TestConnectSuccessIsNotAnError(t *testing.T) {
	ctl, eng := newTestController(liveConfig())

	var connected bool
	ctl.OnConnect(func() { connected = true })

	require.NoError(t, ctl.Create())
	require.NoError(t, ctl.Configure())
	require.NoError(t, ctl.StartCapture(bytes.NewBuffer(nil)))

	eng.onSuccess()
	require.True(t, connected)
	requireNoEvents(t, ctl)
}

func TestCreateUnknownKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Kind = "carrier-pigeon"
	ctl, _ := newTestController(cfg)

	require.NoError(t, ctl.Create())
	require.Equal(t, StateUninitialized, ctl.State())
	requireEvent(t, ctl, "create")
}

func TestEngineFactoryFailure(t *testing.T) {
	cfg := fileConfig(t.TempDir())
	ctl := New(cfg, func(*Config) (engine.Engine, error) {
		return nil, errors.New("camera busy")
	})

	require.NoError(t, ctl.Create())
	require.Equal(t, StateUninitialized, ctl.State())
	ev := requireEvent(t, ctl, "create")
	require.Equal(t, "camera busy", ev.Message)
}
