package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/meter"
	"github.com/audiolibrelab/voicecapture/internal/session"
	"github.com/audiolibrelab/voicecapture/internal/store"

	"github.com/spf13/cobra"
)

const sessionHelp = `Start an interactive recording session. Recordings live for the
duration of the session; export the ones you want to keep.

Commands:
  r, record    start/stop recording
  l, list      list recordings (newest first)
  p, play [n]  play recording n (default: selected)
  s, save [n]  export recording n as WAV (default: selected)
  d, delete n  delete recording n
  c, clear     delete all recordings
  q, quit      end the session`

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an interactive recording session",
	Long:  sessionHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev := audio.NewDevice(cfg)
		ctrl := capture.NewController(dev)
		loop := meter.NewLoop(dev.Analyzer(), cfg.MeterInterval())
		orch := session.New(ctrl, loop, store.New(),
			audio.NewPlayer(cfg), audio.NewExporter(cfg))

		return runSession(cmd, orch)
	},
}

func runSession(cmd *cobra.Command, orch *session.Orchestrator) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "VoiceCapture session — type 'r' to record, 'q' to quit, '?' for help")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	var display *meterDisplay

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		// A device loss mid-recording lands the session back in Idle without
		// a stop intent; reap the meter display and show what happened.
		if display != nil && orch.Status().State == capture.StateIdle {
			display.stop()
			display = nil
			if msg := orch.Status().LastError; msg != "" {
				fmt.Fprintln(out, msg)
			}
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command, arg := fields[0], ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch command {
		case "r", "record":
			wasIdle := orch.Status().State == capture.StateIdle
			if err := orch.StartStop(cmd.Context()); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if wasIdle {
				display = newMeterDisplay(orch, out)
				display.start()
			} else {
				if display != nil {
					display.stop()
					display = nil
				}
				if sel := orch.Status().Selected; sel != nil {
					fmt.Fprintf(out, "recorded %s (%s)\n", sel.ID[:8], formatBytes(int64(sel.Size())))
				}
			}

		case "l", "list":
			printRecordings(out, orch)

		case "p", "play":
			rec, err := resolveRecording(orch, arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if err := orch.Play(rec.ID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "playing %s\n", rec.ID[:8])

		case "s", "save":
			rec, err := resolveRecording(orch, arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if err := orch.Save(rec.ID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "saved %s\n", session.ExportName(rec))

		case "d", "delete":
			rec, err := resolveRecording(orch, arg)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			orch.Delete(rec.ID)
			fmt.Fprintf(out, "deleted %s\n", rec.ID[:8])

		case "c", "clear":
			orch.ClearAll()
			fmt.Fprintln(out, "all recordings deleted")

		case "q", "quit", "exit":
			if display != nil {
				display.stop()
			}
			// A session still recording is finalized before leaving
			if orch.Status().State == capture.StateRecording {
				if err := orch.StartStop(cmd.Context()); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
			return nil

		case "?", "help":
			fmt.Fprintln(out, sessionHelp)

		default:
			fmt.Fprintf(out, "unknown command %q (try '?')\n", command)
		}
	}

	// Input ended without a quit; the display must not outlive the session
	if display != nil {
		display.stop()
	}
	return scanner.Err()
}

// resolveRecording maps a 1-based list index (or empty = current selection)
// to a recording.
func resolveRecording(orch *session.Orchestrator, arg string) (*store.Recording, error) {
	if arg == "" {
		if sel := orch.Status().Selected; sel != nil {
			return sel, nil
		}
		return nil, fmt.Errorf("no recording selected")
	}

	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("expected a recording number, got %q", arg)
	}
	recs := orch.List()
	if n < 1 || n > len(recs) {
		return nil, fmt.Errorf("no recording #%d (have %d)", n, len(recs))
	}
	return recs[n-1], nil
}

func printRecordings(out io.Writer, orch *session.Orchestrator) {
	recs := orch.List()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no recordings yet")
		return
	}
	selected := orch.Status().Selected
	for i, rec := range recs {
		marker := " "
		if selected != nil && selected.ID == rec.ID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %2d. %s  %s  %s\n",
			marker, i+1, rec.CreatedAt.Format("15:04:05"),
			formatBytes(int64(rec.Size())), rec.ID[:8])
	}
}

// meterDisplay renders the live level/duration line while recording.
type meterDisplay struct {
	orch   *session.Orchestrator
	out    io.Writer
	stopCh chan struct{}
	done   chan struct{}
}

func newMeterDisplay(orch *session.Orchestrator, out io.Writer) *meterDisplay {
	return &meterDisplay{
		orch:   orch,
		out:    out,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (d *meterDisplay) start() {
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				fmt.Fprint(d.out, "\r\033[K")
				return
			case <-ticker.C:
				s := d.orch.Status().Sample
				fmt.Fprintf(d.out, "\r\033[K  ● %s  %s", s.Clock(), levelBar(s.Level, 20))
			}
		}
	}()
}

func (d *meterDisplay) stop() {
	close(d.stopCh)
	<-d.done
}

func levelBar(level float64, width int) string {
	filled := int(level * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
