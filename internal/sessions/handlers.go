package sessions

import (
	"errors"
	"io"
	"net/http"

	"github.com/pixkit/camcast/internal/api"
	"github.com/pixkit/camcast/internal/app"
	"github.com/pixkit/camcast/pkg/session"
)

type info struct {
	State       string               `json:"state"`
	Camera      string               `json:"camera"`
	Kind        string               `json:"kind"`
	Endpoint    string               `json:"endpoint,omitempty"`
	Permissions []session.Permission `json:"permissions"`
}

func sessionInfo(c *session.Controller) *info {
	cfg := c.Config()
	return &info{
		State:       c.State().String(),
		Camera:      c.Camera(),
		Kind:        cfg.Output.Kind,
		Endpoint:    c.Endpoint(),
		Permissions: c.RequiredPermissions(),
	}
}

// respond maps controller results to HTTP: ErrInvalidState is caller misuse
// and surfaces synchronously as 409, everything else arrives on the event
// stream.
func respond(w http.ResponseWriter, c *session.Controller, err error) {
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			http.Error(w, err.Error(), http.StatusConflict)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	api.ResponseJSON(w, sessionInfo(c))
}

func apiSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		c := current()
		if c == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		api.ResponseJSON(w, sessionInfo(c))

	case "POST":
		c, ok := create()
		if !ok {
			http.Error(w, "session already exists", http.StatusConflict)
			return
		}
		respond(w, c, c.Create())

	case "DELETE":
		c := current()
		if c == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		respond(w, c, c.Release())

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}

func withSession(w http.ResponseWriter, r *http.Request, f func(c *session.Controller) error) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	c := current()
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	respond(w, c, f(c))
}

func apiConfigure(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, (*session.Controller).Configure)
}

func apiCapture(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, func(c *session.Controller) error {
		if r.URL.Query().Get("action") == "stop" {
			return c.StopCapture()
		}
		// the daemon has no window to render into, preview is discarded
		// unless an engine-side preview consumer is attached
		return c.StartCapture(io.Discard)
	})
}

func apiStream(w http.ResponseWriter, r *http.Request) {
	withSession(w, r, func(c *session.Controller) error {
		if r.URL.Query().Get("action") == "stop" {
			return c.StopStream()
		}
		// blocks until live connect success or failure
		return c.StartStream()
	})
}

func apiCamera(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		c := current()
		if c == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		api.ResponseJSON(w, map[string]string{"camera": c.Camera()})

	case "POST":
		c := current()
		if c == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		id, err := c.ToggleCamera()
		if err != nil {
			respond(w, c, err)
			return
		}

		// remember the choice for the next snapshot
		if err = app.PatchConfig("camera", id, "session"); err != nil {
			log.Debug().Err(err).Msg("[sessions] patch config")
		}

		api.ResponseJSON(w, map[string]string{"camera": id})

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}
