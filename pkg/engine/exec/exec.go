// Package exec implements the capture engine contract on top of an ffmpeg
// child process: camera and microphone in, MPEG-TS byte stream out. The TS
// stream always feeds the preview surface; while streaming it is teed to the
// bound sink - a local file or an SRT connection.
package exec

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	osexec "os/exec"
	"strconv"
	"sync"
	"time"

	srt "github.com/datarhei/gosrt"

	"github.com/pixkit/camcast/pkg/engine"
	"github.com/pixkit/camcast/pkg/shell"
)

type Config struct {
	Bin         string // ffmpeg command, may carry leading args: "nice -n 10 ffmpeg"
	VideoDevice string // camera id is appended: /dev/video + "0"
	AudioDevice string // alsa name, e.g. "default"

	// MPEG-TS service descriptors
	ServiceName     string
	ServiceProvider string
	ServiceID       int

	// SRT stream id for the live connection, optional
	StreamID string
}

func DefaultConfig() Config {
	return Config{
		Bin:         "ffmpeg",
		VideoDevice: "/dev/video",
		AudioDevice: "default",
	}
}

var (
	_ engine.Recorder = (*Engine)(nil)
	_ engine.Live     = (*Engine)(nil)
)

// Engine - one ffmpeg-backed capture pipeline. Implements engine.Recorder
// and engine.Live.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	camera     string
	audio      engine.AudioParams
	video      engine.VideoParams
	configured bool
	capturing  bool
	streaming  bool

	cmd  *osexec.Cmd
	sink *sinkWriter

	outputPath string
	file       *os.File
	conn       net.Conn

	onError   func(source, message string)
	onLost    func(string)
	onFailed  func(string)
	onSuccess func()
}

func New(cfg Config) *Engine {
	if cfg.Bin == "" {
		cfg.Bin = "ffmpeg"
	}
	if cfg.VideoDevice == "" {
		cfg.VideoDevice = "/dev/video"
	}
	if cfg.AudioDevice == "" {
		cfg.AudioDevice = "default"
	}
	return &Engine{cfg: cfg, camera: engine.CameraFront}
}

func (e *Engine) Configure(audio engine.AudioParams, video engine.VideoParams) error {
	if video.Width <= 0 || video.Height <= 0 || video.FPS <= 0 {
		return errors.New("exec: invalid video params")
	}
	if audio.SampleRate <= 0 || audio.Channels <= 0 {
		return errors.New("exec: invalid audio params")
	}

	e.mu.Lock()
	e.audio, e.video = audio, video
	e.configured = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) StartCapture(surface engine.Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.configured {
		return errors.New("exec: not configured")
	}
	if e.capturing {
		return errors.New("exec: already capturing")
	}

	argv, err := e.commandArgs()
	if err != nil {
		return err
	}
	cmd := osexec.Command(argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err = cmd.Start(); err != nil {
		return err
	}

	e.cmd = cmd
	e.sink = &sinkWriter{w: io.Discard, onErr: e.sinkError}
	e.capturing = true

	go e.pump(stdout, surface, e.sink, cmd)

	return nil
}

// commandArgs renders the child argv. Bin may carry a full command line,
// its extra args go before the ffmpeg ones.
func (e *Engine) commandArgs() ([]string, error) {
	argv := shell.QuoteSplit(e.cfg.Bin)
	if len(argv) == 0 {
		return nil, errors.New("exec: invalid bin command line")
	}
	return append(argv, buildArgs(&e.cfg, e.camera, e.audio, e.video)...), nil
}

// pump moves the TS stream from the ffmpeg pipe to the preview surface and
// the current sink until the pipe closes.
func (e *Engine) pump(r io.Reader, surface engine.Surface, sink *sinkWriter, cmd *osexec.Cmd) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = surface.Write(buf[:n])
			_, _ = sink.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	err := cmd.Wait()

	e.mu.Lock()
	unexpected := e.capturing && e.cmd == cmd
	if unexpected {
		e.capturing = false
		e.streaming = false
	}
	f := e.onError
	e.mu.Unlock()

	if unexpected && f != nil {
		msg := "capture pipeline exited"
		if err != nil {
			msg = err.Error()
		}
		f("capture", msg)
	}
}

func (e *Engine) StopCapture() {
	e.mu.Lock()
	cmd := e.cmd
	e.cmd = nil
	e.capturing = false
	e.streaming = false
	e.closeFileLocked()
	e.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// SetOutput binds the file path for the next StartStream.
func (e *Engine) SetOutput(path string) {
	e.mu.Lock()
	e.outputPath = path
	e.mu.Unlock()
}

func (e *Engine) StartStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.capturing {
		return errors.New("exec: not capturing")
	}
	if e.streaming {
		return errors.New("exec: already streaming")
	}

	switch {
	case e.conn != nil:
		e.sink.Set(e.conn)
	case e.outputPath != "":
		f, err := os.Create(e.outputPath)
		if err != nil {
			return err
		}
		e.file = f
		e.sink.Set(f)
	default:
		return errors.New("exec: no output bound")
	}

	e.streaming = true
	return nil
}

func (e *Engine) StopStream() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.streaming {
		return nil
	}
	e.streaming = false
	if e.sink != nil {
		e.sink.Set(io.Discard)
	}
	return e.closeFileLocked()
}

func (e *Engine) closeFileLocked() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

func (e *Engine) Camera() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

// SetCamera swaps the camera selector. Takes effect on the next capture
// start, the running pipeline keeps its device.
func (e *Engine) SetCamera(id string) {
	e.mu.Lock()
	e.camera = id
	e.mu.Unlock()
}

func (e *Engine) Release() {
	e.StopCapture()
	e.Disconnect()
}

func (e *Engine) OnError(f func(source, message string)) {
	e.mu.Lock()
	e.onError = f
	e.mu.Unlock()
}

// Connect dials the SRT peer in caller mode. Blocks until established, ctx
// expires or Disconnect is called.
func (e *Engine) Connect(ctx context.Context, host string, port uint16) error {
	conf := srt.DefaultConfig()
	conf.StreamId = e.cfg.StreamID
	if deadline, ok := ctx.Deadline(); ok {
		conf.ConnectionTimeout = time.Until(deadline)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	type result struct {
		conn srt.Conn
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		conn, err := srt.Dial("srt", addr, conf)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		// close the socket when the abandoned dial finally returns
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return ctx.Err()

	case r := <-ch:
		if r.err != nil {
			return r.err
		}

		e.mu.Lock()
		e.conn = r.conn
		f := e.onSuccess
		e.mu.Unlock()

		if f != nil {
			f()
		}
		return nil
	}
}

func (e *Engine) Disconnect() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	if e.sink != nil && e.streaming {
		e.sink.Set(io.Discard)
		e.streaming = false
	}
	e.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (e *Engine) OnLost(f func(string)) { e.mu.Lock(); e.onLost = f; e.mu.Unlock() }

// OnFailed is kept for engines with a post-start handshake phase. SRT in
// caller mode has none: a failure either aborts Connect or, once the
// connection carries data, surfaces through OnLost.
func (e *Engine) OnFailed(f func(string)) { e.mu.Lock(); e.onFailed = f; e.mu.Unlock() }

func (e *Engine) OnSuccess(f func()) { e.mu.Lock(); e.onSuccess = f; e.mu.Unlock() }

// sinkError fires when a write to the bound sink fails mid-stream. The
// capture pipeline stays alive, only the stream output detaches.
func (e *Engine) sinkError(err error) {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.streaming = false
	lost, generic := e.onLost, e.onError
	e.mu.Unlock()

	wasConn := conn != nil
	if wasConn {
		_ = conn.Close()
	}

	if wasConn && lost != nil {
		lost(err.Error())
		return
	}
	if generic != nil {
		generic("stream", err.Error())
	}
}

// sinkWriter - switchable stream sink. Write never returns an error to the
// pump; a failing sink detaches itself and reports once.
type sinkWriter struct {
	mu    sync.Mutex
	w     io.Writer
	onErr func(error)
}

func (s *sinkWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()

	if _, err := w.Write(p); err != nil {
		s.Set(io.Discard)
		if s.onErr != nil {
			s.onErr(err)
		}
	}
	return len(p), nil
}
