package exec

import (
	"strconv"

	"github.com/pixkit/camcast/pkg/engine"
)

// buildArgs renders the full ffmpeg argv: v4l2 camera + alsa mic in,
// encoded A/V muxed to MPEG-TS on stdout.
func buildArgs(cfg *Config, camera string, audio engine.AudioParams, video engine.VideoParams) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-fflags", "nobuffer", "-flags", "low_delay",
	}

	// video input
	args = append(args,
		"-f", "v4l2",
		"-framerate", strconv.Itoa(video.FPS),
		"-video_size", strconv.Itoa(video.Width)+"x"+strconv.Itoa(video.Height),
		"-i", cfg.VideoDevice+camera,
	)

	// audio input
	args = append(args,
		"-f", "alsa",
		"-sample_rate", strconv.Itoa(audio.SampleRate),
		"-channels", strconv.Itoa(audio.Channels),
		"-i", cfg.AudioDevice,
	)

	args = append(args,
		"-c:v", videoCodec(video.MimeType),
		"-preset", "ultrafast", "-tune", "zerolatency",
		"-b:v", strconv.Itoa(video.Bitrate),
		"-r", strconv.Itoa(video.FPS),
		"-g", strconv.Itoa(2*video.FPS),
	)

	args = append(args,
		"-c:a", audioCodec(audio.MimeType),
		"-b:a", strconv.Itoa(audio.Bitrate),
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
	)

	args = append(args, "-f", "mpegts")
	if cfg.ServiceID != 0 {
		args = append(args, "-mpegts_service_id", strconv.Itoa(cfg.ServiceID))
	}
	if cfg.ServiceName != "" {
		args = append(args, "-metadata", "service_name="+cfg.ServiceName)
	}
	if cfg.ServiceProvider != "" {
		args = append(args, "-metadata", "service_provider="+cfg.ServiceProvider)
	}

	return append(args, "pipe:1")
}

func videoCodec(mimeType string) string {
	switch mimeType {
	case engine.CodecH265:
		return "libx265"
	default:
		return "libx264"
	}
}

func audioCodec(mimeType string) string {
	switch mimeType {
	case engine.CodecOpus:
		return "libopus"
	default:
		return "aac"
	}
}
