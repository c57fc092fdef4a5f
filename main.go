package main

import (
	"github.com/pixkit/camcast/internal/api"
	"github.com/pixkit/camcast/internal/api/ws"
	"github.com/pixkit/camcast/internal/app"
	"github.com/pixkit/camcast/internal/discovery"
	"github.com/pixkit/camcast/internal/sessions"
	"github.com/pixkit/camcast/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	api.Init()       // init HTTP API server
	ws.Init()        // add websocket event stream
	sessions.Init()  // add session lifecycle endpoints
	discovery.Init() // announce the API over mDNS

	shell.RunUntilSignal()
}
