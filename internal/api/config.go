package api

import (
	"io"
	"net/http"
	"os"

	"github.com/pixkit/camcast/internal/app"
)

// configHandler returns or replaces the raw config file. Sessions read a
// fresh snapshot on create, a running session is never affected.
func configHandler(w http.ResponseWriter, r *http.Request) {
	if app.ConfigPath == "" {
		http.Error(w, "config file disabled", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		data, err := os.ReadFile(app.ConfigPath)
		if err != nil && !os.IsNotExist(err) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)

	case "POST", "PUT", "PATCH":
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || len(data) == 0 {
			http.Error(w, "empty config", http.StatusBadRequest)
			return
		}
		if err = os.WriteFile(app.ConfigPath, data, 0644); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}
