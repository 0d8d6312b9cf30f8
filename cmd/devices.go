package cmd

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/voicecapture/internal/audio"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available input devices",
	Long:  `List all input devices (PulseAudio/PipeWire sources) that can be used for recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := audio.ListSources()
		if err != nil {
			return fmt.Errorf("failed to list input devices: %w", err)
		}

		out := cmd.OutOrStdout()
		backends := make([]string, 0, 1)
		for _, b := range audio.GetAvailableBackends() {
			backends = append(backends, string(b))
		}
		fmt.Fprintf(out, "Capture backends: %s\n\n", strings.Join(backends, ", "))

		fmt.Fprintf(out, "Input devices (%d found):\n", len(sources))
		for i, source := range sources {
			marker := " "
			if source == cfg.Audio.Device {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %d. %s\n", marker, i+1, source)
		}
		fmt.Fprintln(out, "\nSet audio.device in the config file to pick one ('default' uses the system default).")
		return nil
	},
}
