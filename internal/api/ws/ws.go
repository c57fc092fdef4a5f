// Package ws delivers the asynchronous session events (errors, connection
// state) to API clients over a websocket.
package ws

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pixkit/camcast/internal/api"
	"github.com/pixkit/camcast/internal/app"
)

func Init() {
	var cfg struct {
		Mod struct {
			Origin string `yaml:"origin"`
		} `yaml:"api"`
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("api")

	initWS(cfg.Mod.Origin)

	api.HandleFunc("api/ws", apiWS)
}

var log zerolog.Logger

// Message - struct for data exchange in Web API
type Message struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

type WSHandler func(tr *Transport, msg *Message) error

func HandleFunc(msgType string, handler WSHandler) {
	wsHandlers[msgType] = handler
}

var wsHandlers = make(map[string]WSHandler)

func initWS(origin string) {
	wsUp = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	switch origin {
	case "":
		// same origin + ignore port
		wsUp.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header["Origin"]
			if len(origin) == 0 {
				return true
			}
			o, err := url.Parse(origin[0])
			if err != nil {
				return false
			}
			if o.Host == r.Host {
				return true
			}
			if i := strings.IndexByte(o.Host, ':'); i > 0 {
				return o.Host[:i] == r.Host
			}
			return false
		}
	case "*":
		// any origin
		wsUp.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

func apiWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUp.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Caller().Msgf("host=%s origin=%s", r.Host, r.Header.Get("Origin"))
		return
	}

	tr := NewTransport(func(msg any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(time.Second * 5))
		return ws.WriteJSON(msg)
	})

	for {
		var raw struct {
			Type string `json:"type"`
		}
		if err = ws.ReadJSON(&raw); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
				log.Trace().Err(err).Caller().Send()
			}
			_ = ws.Close()
			break
		}

		msg := &Message{Type: raw.Type}

		log.Trace().Str("type", msg.Type).Msg("[api] ws msg")

		if handler := wsHandlers[msg.Type]; handler != nil {
			if err = handler(tr, msg); err != nil {
				tr.Write(&Message{Type: "error", Value: msg.Type + ": " + err.Error()})
			}
		}
	}

	tr.Close()
}

var wsUp *websocket.Upgrader

// Transport - one websocket client. Writes are serialized, OnClose hooks
// run once when the peer goes away.
type Transport struct {
	mu      sync.Mutex
	wrmu    sync.Mutex
	closed  bool
	onWrite func(msg any) error
	onClose []func()
}

// NewTransport wraps one established client connection, write delivers a
// serialized message to the peer.
func NewTransport(write func(msg any) error) *Transport {
	return &Transport{onWrite: write}
}

func (t *Transport) Write(msg any) {
	t.wrmu.Lock()
	_ = t.onWrite(msg)
	t.wrmu.Unlock()
}

func (t *Transport) Close() {
	t.mu.Lock()
	for _, f := range t.onClose {
		f()
	}
	t.closed = true
	t.mu.Unlock()
}

func (t *Transport) OnClose(f func()) {
	t.mu.Lock()
	if t.closed {
		f()
	} else {
		t.onClose = append(t.onClose, f)
	}
	t.mu.Unlock()
}
