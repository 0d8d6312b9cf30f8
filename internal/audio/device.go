package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/meter"
)

// FFmpegDevice implements capture.Device by running an ffmpeg process that
// reads the configured input source and writes raw s16le PCM to stdout. Each
// stdout read becomes one chunk; the concatenation of all chunks of a session
// is the finalized artifact.
type FFmpegDevice struct {
	cfg *config.Config

	// Most recent chunk from the active stream, observed for the analyzer.
	mu        sync.Mutex
	lastChunk []byte
	active    bool
}

// NewFFmpegDevice creates a device for the configured capture source.
func NewFFmpegDevice(cfg *config.Config) *FFmpegDevice {
	return &FFmpegDevice{cfg: cfg}
}

// RequestAccess verifies the capture pipeline is usable and grants a stream.
// The ffmpeg process itself is started by Stream.Begin.
func (d *FFmpegDevice) RequestAccess(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", capture.ErrDeviceUnavailable)
	}
	return &micStream{dev: d}, nil
}

// Analyzer returns the pull-based analyzer for the device's live stream.
func (d *FFmpegDevice) Analyzer() meter.Analyzer {
	return &pcmAnalyzer{dev: d}
}

func (d *FFmpegDevice) observe(chunk []byte) {
	d.mu.Lock()
	d.lastChunk = chunk
	d.active = true
	d.mu.Unlock()
}

func (d *FFmpegDevice) detach() {
	d.mu.Lock()
	d.lastChunk = nil
	d.active = false
	d.mu.Unlock()
}

// pcmAnalyzer derives a frequency-style bin snapshot from the most recent PCM
// chunk of the active stream. The capture pipeline exposes no spectral data,
// so bins are per-window amplitude means.
type pcmAnalyzer struct {
	dev *FFmpegDevice
}

func (a *pcmAnalyzer) Sample() ([]byte, error) {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	if !a.dev.active {
		return nil, fmt.Errorf("no active capture stream")
	}
	return AmplitudeBins(a.dev.lastChunk, a.dev.cfg.Meter.Bins), nil
}

// micStream is one granted capture session. Close releases the device
// resource (the ffmpeg process) exactly once.
type micStream struct {
	dev *FFmpegDevice

	mu        sync.Mutex
	cmd       *exec.Cmd
	handle    *micHandle
	stderrBuf strings.Builder
	closed    bool
}

// Begin starts the ffmpeg process and the chunk reader.
func (s *micStream) Begin() (capture.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.dev.cfg
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "pulse",
		"-i", cfg.Audio.Device,
		"-ac", fmt.Sprintf("%d", cfg.Audio.Channels),
		"-ar", fmt.Sprintf("%d", cfg.Audio.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}
	slog.Debug("Starting FFmpeg capture", "command", "ffmpeg "+strings.Join(args, " "))

	cmd := exec.Command("ffmpeg", args...)
	cmd.Stderr = &s.stderrBuf

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	s.cmd = cmd
	s.handle = &micHandle{
		stream:     s,
		chunks:     make(chan []byte, 8),
		readerDone: make(chan struct{}),
	}

	go s.handle.read(stdout, cfg.Audio.ChunkBytes)
	return s.handle, nil
}

// Close terminates the capture process if it is still running. Safe to call
// more than once; only the first call acts.
func (s *micStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		s.cmd.Process.Kill()
	}
	return nil
}

// classifyExit maps a premature ffmpeg exit to the capture error taxonomy
// using its stderr output.
func (s *micStream) classifyExit(waitErr error) error {
	stderr := strings.ToLower(s.stderrBuf.String())
	if strings.Contains(stderr, "permission denied") || strings.Contains(stderr, "access denied") {
		return fmt.Errorf("%w: %s", capture.ErrPermissionDenied, firstLine(s.stderrBuf.String()))
	}
	if msg := firstLine(s.stderrBuf.String()); msg != "" {
		return fmt.Errorf("%w: %s", capture.ErrDeviceUnavailable, msg)
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, waitErr)
	}
	return capture.ErrCaptureLost
}

// micHandle emits chunks for one session.
type micHandle struct {
	stream *micStream
	chunks chan []byte

	mu         sync.Mutex
	ended      bool
	lostErr    error
	readerDone chan struct{}
}

func (h *micHandle) Chunks() <-chan []byte { return h.chunks }

// End asks ffmpeg to finish. SIGINT lets it flush its pipes; if the process
// lingers it is killed. Chunk emission stops when the reader drains the final
// bytes and closes the channel.
func (h *micHandle) End() error {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return nil
	}
	h.ended = true
	h.mu.Unlock()

	s := h.stream
	s.mu.Lock()
	proc := s.cmd.Process
	s.mu.Unlock()

	if proc != nil {
		if err := proc.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt FFmpeg, killing", "error", err)
			proc.Kill()
		}
	}

	// Force-kill if the process does not exit in time
	go func() {
		select {
		case <-h.readerDone:
		case <-time.After(3 * time.Second):
			slog.Warn("FFmpeg did not exit within timeout, force killing")
			if proc != nil {
				proc.Kill()
			}
		}
	}()

	return nil
}

// Err reports why the chunk channel closed early.
func (h *micHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lostErr
}

// read drains the process stdout into chunks until EOF, then reaps the
// process. An exit that nobody asked for marks the session as lost.
func (h *micHandle) read(stdout io.Reader, chunkBytes int) {
	defer close(h.readerDone)

	for {
		buf := make([]byte, chunkBytes)
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			h.stream.dev.observe(chunk)
			h.chunks <- chunk
		}
		if err != nil {
			break
		}
	}

	waitErr := h.stream.cmd.Wait()
	h.stream.dev.detach()

	h.mu.Lock()
	if !h.ended {
		h.lostErr = h.stream.classifyExit(waitErr)
	}
	h.mu.Unlock()

	close(h.chunks)
}

// ListSources lists capture sources known to the sound server.
func ListSources() ([]string, error) {
	cmd := exec.Command("pactl", "list", "short", "sources")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list capture sources: %w", err)
	}

	var sources []string
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			sources = append(sources, fields[1])
		}
	}
	return sources, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
