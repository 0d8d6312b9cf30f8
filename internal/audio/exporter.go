package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/voicecapture/internal/config"
)

// Exporter persists finalized artifacts as WAV files in the configured
// output directory.
type Exporter struct {
	cfg *config.Config
}

// NewExporter creates an exporter writing into cfg.Output.Directory.
func NewExporter(cfg *config.Config) *Exporter {
	return &Exporter{cfg: cfg}
}

// Export writes the artifact under the suggested name.
func (e *Exporter) Export(artifact []byte, suggestedName string) error {
	dir := e.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, suggestedName)
	data := EncodeWAV(artifact, e.cfg.Audio.SampleRate, e.cfg.Audio.Channels)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}

	slog.Info("Recording saved", "path", path, "bytes", len(data))
	return nil
}
