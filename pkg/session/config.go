package session

import (
	"strings"

	"github.com/pixkit/camcast/pkg/engine"
)

// Output kinds.
const (
	KindFile = "file"
	KindLive = "live"
)

// Config - immutable snapshot of one session's parameters. A controller
// copies it at creation time; changing the external source never affects a
// running session, a new snapshot means a new session.
type Config struct {
	Camera string `yaml:"camera"` // "0" front, "1" back

	Video struct {
		Codec   string `yaml:"codec"`
		Width   int    `yaml:"width"`
		Height  int    `yaml:"height"`
		FPS     int    `yaml:"fps"`
		Bitrate int    `yaml:"bitrate"` // kbit/s
	} `yaml:"video"`

	Audio struct {
		Codec        string `yaml:"codec"`
		Bitrate      int    `yaml:"bitrate"` // kbit/s
		SampleRate   int    `yaml:"sample_rate"`
		Channels     int    `yaml:"channels"`
		SampleFormat string `yaml:"sample_format"`
	} `yaml:"audio"`

	Mux struct {
		ServiceName     string `yaml:"service_name"`
		ServiceProvider string `yaml:"service_provider"`
		ServiceID       int    `yaml:"service_id"`
	} `yaml:"mux"`

	Output struct {
		Kind     string `yaml:"kind"` // file | live
		Dir      string `yaml:"dir"`
		Filename string `yaml:"filename"`
		Host     string `yaml:"host"`
		Port     uint16 `yaml:"port"`
		Timeout  int    `yaml:"timeout"` // connect timeout, seconds
	} `yaml:"output"`
}

func DefaultConfig() Config {
	var cfg Config
	cfg.Camera = engine.CameraFront

	cfg.Video.Codec = "h264"
	cfg.Video.Width = 1280
	cfg.Video.Height = 720
	cfg.Video.FPS = 30
	cfg.Video.Bitrate = 2500

	cfg.Audio.Codec = "aac"
	cfg.Audio.Bitrate = 128
	cfg.Audio.SampleRate = 44100
	cfg.Audio.Channels = 2
	cfg.Audio.SampleFormat = "s16le"

	cfg.Mux.ServiceName = "CamCast"
	cfg.Mux.ServiceProvider = "pixkit"
	cfg.Mux.ServiceID = 1

	cfg.Output.Kind = KindFile
	cfg.Output.Filename = "camcast.ts"
	cfg.Output.Timeout = 10

	return cfg
}

// Params derives the encoder settings from the snapshot. The kbit/s to
// bit/s conversion happens here and nowhere else.
func (c *Config) Params() (engine.AudioParams, engine.VideoParams) {
	audio := engine.AudioParams{
		MimeType:     audioMime(c.Audio.Codec),
		Bitrate:      c.Audio.Bitrate * 1000,
		SampleRate:   c.Audio.SampleRate,
		Channels:     c.Audio.Channels,
		SampleFormat: c.Audio.SampleFormat,
	}
	video := engine.VideoParams{
		MimeType: videoMime(c.Video.Codec),
		Bitrate:  c.Video.Bitrate * 1000,
		Width:    c.Video.Width,
		Height:   c.Video.Height,
		FPS:      c.Video.FPS,
	}
	return audio, video
}

func videoMime(codec string) string {
	switch strings.ToLower(codec) {
	case "", "h264", "avc":
		return engine.CodecH264
	case "h265", "hevc":
		return engine.CodecH265
	}
	return codec
}

func audioMime(codec string) string {
	switch strings.ToLower(codec) {
	case "", "aac":
		return engine.CodecAAC
	case "opus":
		return engine.CodecOpus
	}
	return codec
}
