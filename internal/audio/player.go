package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/voicecapture/internal/config"
)

// Player plays a finalized artifact (raw s16le PCM) through an external
// audio player fed over stdin.
type Player struct {
	cfg *config.Config
}

// NewPlayer creates a player for the configured audio format.
func NewPlayer(cfg *config.Config) *Player {
	return &Player{cfg: cfg}
}

// Play blocks until playback finishes.
func (p *Player) Play(artifact []byte) error {
	if len(artifact) == 0 {
		return fmt.Errorf("nothing to play: empty artifact")
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	rate := fmt.Sprintf("%d", p.cfg.Audio.SampleRate)
	channels := fmt.Sprintf("%d", p.cfg.Audio.Channels)

	var cmd *exec.Cmd
	switch player {
	case "ffplay":
		cmd = exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "error",
			"-f", "s16le", "-ar", rate, "-ac", channels, "-")
	case "aplay":
		cmd = exec.Command("aplay", "-q", "-f", "S16_LE", "-r", rate, "-c", channels, "-")
	default:
		return fmt.Errorf("unsupported player: %s", player)
	}
	cmd.Stdin = bytes.NewReader(artifact)

	slog.Debug("Starting playback", "player", player, "bytes", len(artifact))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func (p *Player) findAudioPlayer() (string, error) {
	// Preference order; both accept raw PCM on stdin
	players := []string{"ffplay", "aplay"}

	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}
