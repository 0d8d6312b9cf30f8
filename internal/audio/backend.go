package audio

import (
	"strings"

	"github.com/audiolibrelab/voicecapture/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeFFmpeg BackendType = "ffmpeg"
	BackendTypeAuto   BackendType = "auto"
)

// NewDevice creates a capture device using the appropriate backend based on
// configuration.
func NewDevice(cfg *config.Config) *FFmpegDevice {
	switch determineBackend(cfg) {
	case BackendTypeFFmpeg:
		return NewFFmpegDevice(cfg)
	default:
		// FFmpeg is the only available backend
		return NewFFmpegDevice(cfg)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	if cfg.Audio.Backend != "" {
		switch strings.ToLower(cfg.Audio.Backend) {
		case "ffmpeg":
			return BackendTypeFFmpeg
		case "auto":
			return BackendTypeFFmpeg // only FFmpeg is available now
		}
	}
	return BackendTypeFFmpeg
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeFFmpeg}
}
