// Package engine declares the capture engine contract: a component that owns
// camera and microphone capture, encoding and muxing, and pushes the muxed
// byte stream to whatever output it was bound to.
package engine

import (
	"context"
	"io"
)

const (
	CodecH264 = "video/avc"
	CodecH265 = "video/hevc"
	CodecAAC  = "audio/mp4a-latm"
	CodecOpus = "audio/opus"
)

// Camera selector values. On Linux they map to /dev/video<N>.
const (
	CameraFront = "0"
	CameraBack  = "1"
)

// VideoParams - video encoder settings. Bitrate in bits per second.
type VideoParams struct {
	MimeType string
	Bitrate  int
	Width    int
	Height   int
	FPS      int
}

// AudioParams - audio encoder settings. Bitrate in bits per second.
type AudioParams struct {
	MimeType     string
	Bitrate      int
	SampleRate   int
	Channels     int
	SampleFormat string // s16le...
}

// Surface receives the capture preview. Data is written from the engine's
// own goroutines, so implementations must be safe for a single concurrent
// writer.
type Surface interface {
	io.Writer
}

// Engine is implemented by capture engines. All methods may be called from
// one control goroutine only; error callbacks fire from engine goroutines.
type Engine interface {
	Configure(audio AudioParams, video VideoParams) error

	StartCapture(surface Surface) error
	StopCapture()

	StartStream() error
	StopStream() error

	// Camera returns the active camera selector, SetCamera swaps it.
	// Swapping takes effect on the next capture start.
	Camera() string
	SetCamera(id string)

	// Release frees the camera and encoder resources. Safe to call more
	// than once.
	Release()

	// OnError registers the async failure callback. Must be set before
	// StartCapture.
	OnError(f func(source, message string))
}

// Recorder is an Engine that can write the muxed stream to a local file.
type Recorder interface {
	Engine

	// SetOutput binds the absolute output file path for the next
	// StartStream.
	SetOutput(path string)
}

// Live is an Engine that can publish the muxed stream to a remote peer.
type Live interface {
	Engine

	// Connect blocks until the connection is established, ctx expires or
	// Disconnect is called from another goroutine.
	Connect(ctx context.Context, host string, port uint16) error

	// Disconnect closes the connection if any. Safe to call at any time,
	// including while Connect is blocked.
	Disconnect()

	OnLost(f func(message string))
	OnFailed(f func(message string))
	OnSuccess(f func())
}
