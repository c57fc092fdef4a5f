// Package sessions owns the live capture-and-stream session: it builds a
// controller from a fresh config snapshot, exposes the lifecycle over the
// HTTP API and fans the controller's async events out to websocket clients.
package sessions

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pixkit/camcast/internal/api"
	"github.com/pixkit/camcast/internal/api/ws"
	"github.com/pixkit/camcast/internal/app"
	"github.com/pixkit/camcast/pkg/engine"
	execeng "github.com/pixkit/camcast/pkg/engine/exec"
	"github.com/pixkit/camcast/pkg/session"
)

func Init() {
	log = app.GetLogger("sessions")

	api.HandleFunc("api/session", apiSession)
	api.HandleFunc("api/session/configure", apiConfigure)
	api.HandleFunc("api/session/capture", apiCapture)
	api.HandleFunc("api/session/stream", apiStream)
	api.HandleFunc("api/session/camera", apiCamera)

	ws.HandleFunc("events", wsEvents)
}

var log zerolog.Logger

var (
	mu  sync.Mutex
	ctl *session.Controller

	subMu sync.Mutex
	subs  = map[*ws.Transport]struct{}{}
)

// snapshot reads the session config fresh from every config source. The
// returned value is this session's immutable snapshot.
func snapshot() session.Config {
	var cfg struct {
		Session session.Config `yaml:"session"`
	}
	cfg.Session = session.DefaultConfig()
	app.LoadConfig(&cfg)
	return cfg.Session
}

// newEngine builds the ffmpeg-backed capture engine for one session.
func newEngine(cfg *session.Config) (engine.Engine, error) {
	var mod struct {
		FFmpeg struct {
			Bin         string `yaml:"bin"`
			VideoDevice string `yaml:"video_device"`
			AudioDevice string `yaml:"audio_device"`
		} `yaml:"ffmpeg"`
	}
	app.LoadConfig(&mod)

	ec := execeng.DefaultConfig()
	if mod.FFmpeg.Bin != "" {
		ec.Bin = mod.FFmpeg.Bin
	}
	if mod.FFmpeg.VideoDevice != "" {
		ec.VideoDevice = mod.FFmpeg.VideoDevice
	}
	if mod.FFmpeg.AudioDevice != "" {
		ec.AudioDevice = mod.FFmpeg.AudioDevice
	}
	ec.ServiceName = cfg.Mux.ServiceName
	ec.ServiceProvider = cfg.Mux.ServiceProvider
	ec.ServiceID = cfg.Mux.ServiceID

	return execeng.New(ec), nil
}

// create replaces the current controller with a fresh one and starts its
// event pump. A previous non-released session blocks creation.
func create() (*session.Controller, bool) {
	mu.Lock()
	defer mu.Unlock()

	if ctl != nil && ctl.State() != session.StateReleased {
		return nil, false
	}

	c := session.New(snapshot(), newEngine)
	c.OnConnect(func() {
		log.Info().Msg("[sessions] connected")
		broadcast(&ws.Message{Type: "connect"})
	})

	go pump(c)

	ctl = c
	return c, true
}

func current() *session.Controller {
	mu.Lock()
	defer mu.Unlock()
	return ctl
}

// pump forwards controller events to websocket subscribers until release.
func pump(c *session.Controller) {
	for {
		select {
		case ev := <-c.Events():
			log.Warn().Str("source", ev.Source).Str("message", ev.Message).Msg("[sessions] error")
			broadcast(&ws.Message{Type: "error", Value: ev})

		case <-c.Done():
			// drain what the release raced with
			for {
				select {
				case ev := <-c.Events():
					broadcast(&ws.Message{Type: "error", Value: ev})
				default:
					return
				}
			}
		}
	}
}

func broadcast(msg *ws.Message) {
	subMu.Lock()
	for tr := range subs {
		tr.Write(msg)
	}
	subMu.Unlock()
}

func wsEvents(tr *ws.Transport, _ *ws.Message) error {
	subMu.Lock()
	subs[tr] = struct{}{}
	subMu.Unlock()

	tr.OnClose(func() {
		subMu.Lock()
		delete(subs, tr)
		subMu.Unlock()
	})

	return nil
}
