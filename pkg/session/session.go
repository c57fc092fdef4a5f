// Package session drives the lifecycle of one live capture-and-stream
// session: it owns a capture engine bound to a file or live transport and
// sequences create, configure, preview, stream and release.
//
// State transitions run on the caller's goroutine, engine and transport
// failures arrive asynchronously from their own goroutines. Both sides are
// serialized on the controller mutex, failures reach the caller only through
// the events channel. The one error a controller method returns itself is
// ErrInvalidState, which reflects caller misuse.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pixkit/camcast/pkg/engine"
)

// ErrInvalidState - the operation is not legal in the current state.
var ErrInvalidState = errors.New("session: invalid state")

// EngineFactory builds the capture engine for a new session.
type EngineFactory func(cfg *Config) (engine.Engine, error)

// Controller - the lifecycle state machine. One controller exists per
// session; it is the exclusive owner of its engine and transport.
type Controller struct {
	mu         sync.Mutex
	state      State
	starting   bool // StartStream in flight outside the lock
	abortStart bool // StopStream arrived while starting

	cfg       Config
	newEngine EngineFactory
	eng       engine.Engine
	transport Transport
	events    chan ErrorEvent
	done      chan struct{}
	onConnect func()
}

// New returns a controller in the uninitialized state. The config snapshot
// is copied and stays immutable for the session's lifetime.
func New(cfg Config, newEngine EngineFactory) *Controller {
	return &Controller{
		cfg:       cfg,
		newEngine: newEngine,
		events:    make(chan ErrorEvent, 16),
		done:      make(chan struct{}),
	}
}

// Events - the single ordered failure channel. The caller must drain it,
// events are dropped when the buffer is full.
func (c *Controller) Events() <-chan ErrorEvent {
	return c.events
}

// Done is closed when the session is released.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// OnConnect registers the informational live-connection callback. Success
// never traverses the error channel.
func (c *Controller) OnConnect(f func()) {
	c.mu.Lock()
	c.onConnect = f
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Config() Config {
	return c.cfg
}

// Camera returns the active camera selector.
func (c *Controller) Camera() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng != nil {
		return c.eng.Camera()
	}
	return c.cfg.Camera
}

// RequiredPermissions lists the capabilities the caller must hold for the
// session's output kind.
func (c *Controller) RequiredPermissions() []Permission {
	return RequiredPermissions(c.cfg.Output.Kind)
}

// Endpoint describes the output destination, empty before Create.
func (c *Controller) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return ""
	}
	return c.transport.Endpoint()
}

// Create builds the transport selected by the config snapshot and the
// engine bound to it. Uninitialized -> Created.
func (c *Controller) Create() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return invalid("create", c.state)
	}

	transport, err := NewTransport(&c.cfg)
	if err != nil {
		c.emit("create", err.Error())
		return nil
	}

	eng, err := c.newEngine(&c.cfg)
	if err != nil {
		c.emit("create", err.Error())
		return nil
	}

	eng.SetCamera(c.cfg.Camera)
	eng.OnError(c.emit)

	if live, ok := eng.(engine.Live); ok {
		live.OnLost(func(msg string) { c.emit(SourceConnectionLost, msg) })
		live.OnFailed(func(msg string) { c.emit(SourceConnectionFailed, msg) })
		live.OnSuccess(c.fireConnect)
	}

	c.eng = eng
	c.transport = transport
	c.state = StateCreated
	return nil
}

// Configure pushes the derived encoder parameters into the engine.
// Created -> Configured. The caller must hold the camera and microphone
// permissions.
func (c *Controller) Configure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated {
		return invalid("configure", c.state)
	}

	audio, video := c.cfg.Params()
	if err := c.eng.Configure(audio, video); err != nil {
		c.emit("configure", err.Error())
		return nil
	}

	c.state = StateConfigured
	return nil
}

// StartCapture starts camera and microphone capture with preview on the
// given surface. Configured -> Previewing.
func (c *Controller) StartCapture(surface engine.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConfigured {
		return invalid("startCapture", c.state)
	}

	if surface == nil {
		c.emit("startCapture", "nil surface")
		return nil
	}

	if err := c.eng.StartCapture(surface); err != nil {
		c.emit("startCapture", err.Error())
		return nil
	}

	c.state = StatePreviewing
	return nil
}

// StopCapture stops capture, keeping the configured engine.
// Previewing -> Configured.
func (c *Controller) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePreviewing {
		return invalid("stopCapture", c.state)
	}

	c.eng.StopCapture()
	c.state = StateConfigured
	return nil
}

// StartStream binds the engine output to the transport and starts
// streaming. Previewing -> Streaming. With a live transport the call blocks
// until connect success or failure; StopStream and Release abandon an
// in-flight connect.
func (c *Controller) StartStream() error {
	c.mu.Lock()
	if c.state != StatePreviewing || c.starting {
		defer c.mu.Unlock()
		return invalid("startStream", c.state)
	}
	c.starting = true
	eng, transport := c.eng, c.transport
	c.mu.Unlock()

	// the transport may block here, the controller stays usable
	err := transport.Prepare()
	if err == nil {
		err = transport.Start(eng)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	aborted := c.abortStart
	c.abortStart = false

	if err != nil {
		c.emit("startStream", err.Error())
		return nil
	}

	if c.state != StatePreviewing || aborted {
		// stopped or released while the transport was connecting
		if c.state != StateReleased {
			_ = transport.Stop(eng)
		} else if live, ok := eng.(engine.Live); ok {
			live.Disconnect()
		}
		return nil
	}

	c.state = StateStreaming
	return nil
}

// StopStream stops streaming and returns to preview. Redundant calls are
// not an error. For a live transport the disconnect is attempted even when
// the engine-level stop fails.
func (c *Controller) StopStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized, StateReleased:
		return invalid("stopStream", c.state)

	case StateStreaming:
		if err := c.transport.Stop(c.eng); err != nil {
			c.emit("stopStream", err.Error())
		}
		c.state = StatePreviewing

	default:
		// already stopped; still abandon an in-flight connect
		if c.starting {
			c.abortStart = true
		}
		c.transport.Abort()
	}

	return nil
}

// ToggleCamera swaps the camera selector and returns the new identity.
// Swapping while streaming is unsafe and rejected.
func (c *Controller) ToggleCamera() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized, StateStreaming, StateReleased:
		return "", invalid("toggleCamera", c.state)
	}

	id := engine.CameraFront
	if c.eng.Camera() == engine.CameraFront {
		id = engine.CameraBack
	}
	c.eng.SetCamera(id)
	return id, nil
}

// Release frees the engine unconditionally and renders the controller
// permanently inert: every later operation fails with ErrInvalidState and
// never reaches the released engine.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReleased {
		return invalid("release", c.state)
	}

	if c.transport != nil {
		c.transport.Abort()
		if c.state == StateStreaming {
			_ = c.transport.Stop(c.eng)
		}
	}
	if c.eng != nil {
		c.eng.Release()
	}

	c.state = StateReleased
	close(c.done)
	return nil
}

// emit is safe from any goroutine, with or without the controller mutex.
func (c *Controller) emit(source, message string) {
	select {
	case c.events <- ErrorEvent{Source: source, Message: message}:
	default:
	}
}

func (c *Controller) fireConnect() {
	c.mu.Lock()
	f := c.onConnect
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func invalid(op string, s State) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidState, op, s)
}
