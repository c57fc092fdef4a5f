package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pixkit/camcast/pkg/engine"
)

// ErrPathResolution - the file transport could not resolve its output path.
var ErrPathResolution = errors.New("session: storage dir unavailable")

// Transport binds an engine to one of the two output destinations. The kind
// is fixed for the lifetime of the owning engine, switching transport means
// recreating the session.
type Transport interface {
	Kind() string

	// Prepare runs transport-specific setup before the engine is started.
	Prepare() error

	// Start wraps the engine-level stream start. For the live variant it
	// blocks until the connection is established or fails.
	Start(eng engine.Engine) error

	// Stop wraps the engine-level stream stop. Transport-specific cleanup
	// runs even when the engine-level stop fails.
	Stop(eng engine.Engine) error

	// Abort abandons an in-flight Start without waiting for it.
	Abort()

	// Endpoint describes the destination: output path or host:port.
	Endpoint() string
}

// NewTransport builds the transport the config snapshot selects.
func NewTransport(cfg *Config) (Transport, error) {
	switch cfg.Output.Kind {
	case KindFile:
		if cfg.Output.Filename == "" {
			return nil, errors.New("session: file output without filename")
		}
		return &fileTransport{dir: cfg.Output.Dir, filename: cfg.Output.Filename}, nil

	case KindLive:
		if cfg.Output.Host == "" || cfg.Output.Port == 0 {
			return nil, errors.New("session: live output without host:port")
		}
		timeout := time.Duration(cfg.Output.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &liveTransport{host: cfg.Output.Host, port: cfg.Output.Port, timeout: timeout}, nil
	}

	return nil, fmt.Errorf("session: unknown output kind %q", cfg.Output.Kind)
}

type fileTransport struct {
	dir      string
	filename string
	path     string
}

func (t *fileTransport) Kind() string { return KindFile }

func (t *fileTransport) Prepare() error {
	if t.dir == "" {
		return ErrPathResolution
	}
	if fi, err := os.Stat(t.dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathResolution, t.dir)
	}
	t.path = filepath.Join(t.dir, t.filename)
	return nil
}

func (t *fileTransport) Start(eng engine.Engine) error {
	rec, ok := eng.(engine.Recorder)
	if !ok {
		return errors.New("session: engine can't record to file")
	}
	rec.SetOutput(t.path)
	return eng.StartStream()
}

func (t *fileTransport) Stop(eng engine.Engine) error {
	return eng.StopStream()
}

func (t *fileTransport) Abort() {}

func (t *fileTransport) Endpoint() string { return t.path }

type liveTransport struct {
	host    string
	port    uint16
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (t *liveTransport) Kind() string { return KindLive }

func (t *liveTransport) Prepare() error { return nil }

func (t *liveTransport) Start(eng engine.Engine) error {
	live, ok := eng.(engine.Live)
	if !ok {
		return errors.New("session: engine can't stream live")
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	err := live.Connect(ctx, t.host, t.port)

	t.mu.Lock()
	t.cancel = nil
	t.mu.Unlock()
	cancel()

	if err != nil {
		return err
	}

	if err = eng.StartStream(); err != nil {
		live.Disconnect()
		return err
	}
	return nil
}

func (t *liveTransport) Stop(eng engine.Engine) error {
	err := eng.StopStream()

	// disconnect is unconditional cleanup
	if live, ok := eng.(engine.Live); ok {
		live.Disconnect()
	}
	return err
}

func (t *liveTransport) Abort() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
}

func (t *liveTransport) Endpoint() string {
	return net.JoinHostPort(t.host, strconv.Itoa(int(t.port)))
}
