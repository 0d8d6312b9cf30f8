package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/meter"
	"github.com/audiolibrelab/voicecapture/internal/store"
)

// scriptedDevice emits a fixed set of chunks per session.
type scriptedDevice struct {
	mu       sync.Mutex
	denyWith error
	chunks   [][]byte
	grants   int
}

func (d *scriptedDevice) RequestAccess(ctx context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denyWith != nil {
		return nil, d.denyWith
	}
	d.grants++
	ch := make(chan []byte, len(d.chunks)+1)
	for _, c := range d.chunks {
		ch <- c
	}
	return &scriptedStream{chunks: ch}, nil
}

type scriptedStream struct {
	mu     sync.Mutex
	chunks chan []byte
	ended  bool
}

func (s *scriptedStream) Begin() (capture.Handle, error) { return s, nil }
func (s *scriptedStream) Close() error                   { return nil }
func (s *scriptedStream) Chunks() <-chan []byte          { return s.chunks }
func (s *scriptedStream) Err() error                     { return nil }

func (s *scriptedStream) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.chunks)
	}
	return nil
}

type fakePlayer struct {
	mu     sync.Mutex
	played [][]byte
}

func (p *fakePlayer) Play(artifact []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, artifact)
	return nil
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type fakeExporter struct {
	names     []string
	artifacts [][]byte
	failWith  error
}

func (e *fakeExporter) Export(artifact []byte, suggestedName string) error {
	if e.failWith != nil {
		return e.failWith
	}
	e.artifacts = append(e.artifacts, artifact)
	e.names = append(e.names, suggestedName)
	return nil
}

type staticAnalyzer struct{}

func (staticAnalyzer) Sample() ([]byte, error) { return []byte{128}, nil }

func newOrchestrator(dev capture.Device) (*Orchestrator, *fakePlayer, *fakeExporter) {
	ctrl := capture.NewController(dev)
	loop := meter.NewLoop(staticAnalyzer{}, 2*time.Millisecond)
	player := &fakePlayer{}
	exporter := &fakeExporter{}
	return New(ctrl, loop, store.New(), player, exporter), player, exporter
}

// record runs one full start/stop cycle and waits for the scripted chunks to
// be accumulated before stopping.
func record(t *testing.T, o *Orchestrator, want int) {
	t.Helper()
	if err := o.StartStop(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Scripted chunks are buffered, so a short poll suffices
	time.Sleep(10 * time.Millisecond)
	if err := o.StartStop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := o.Status().Count; got != want {
		t.Fatalf("Expected %d recordings after session, got %d", want, got)
	}
}

func TestStartStop_InsertsAndSelects(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("c1"), []byte("c2")}}
	o, _, _ := newOrchestrator(dev)

	record(t, o, 1)

	st := o.Status()
	if st.State != capture.StateIdle {
		t.Errorf("Expected IDLE, got %s", st.State)
	}
	if st.Selected == nil {
		t.Fatal("Expected the new recording to be selected")
	}
	if !bytes.Equal(st.Selected.Artifact, []byte("c1c2")) {
		t.Errorf("Expected artifact concat(c1,c2), got %q", st.Selected.Artifact)
	}
}

func TestStartStop_MeterLifecycle(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("x")}}
	ctrl := capture.NewController(dev)
	loop := meter.NewLoop(staticAnalyzer{}, 2*time.Millisecond)
	o := New(ctrl, loop, store.New(), &fakePlayer{}, &fakeExporter{})

	if err := o.StartStop(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !loop.Running() {
		t.Error("Expected meter loop to run while recording")
	}

	time.Sleep(10 * time.Millisecond)
	if err := o.StartStop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if loop.Running() {
		t.Error("Expected meter loop stopped after recording ends")
	}
	if got := loop.Current().Level; got != 0 {
		t.Errorf("Expected level 0 after stop, got %v", got)
	}
}

func TestStartStop_PermissionDenied(t *testing.T) {
	dev := &scriptedDevice{denyWith: capture.ErrPermissionDenied}
	o, _, _ := newOrchestrator(dev)

	err := o.StartStop(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}

	st := o.Status()
	if st.State != capture.StateIdle {
		t.Errorf("Expected IDLE, got %s", st.State)
	}
	if st.Count != 0 {
		t.Errorf("Expected store unchanged, got %d recordings", st.Count)
	}
	if st.LastError == "" {
		t.Error("Expected last error to be recorded")
	}
}

func TestPlay(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("pcm")}}
	o, player, _ := newOrchestrator(dev)
	record(t, o, 1)

	rec := o.List()[0]
	if err := o.Play(rec.ID); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for player.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if player.count() != 1 {
		t.Fatalf("Expected 1 playback, got %d", player.count())
	}

	if err := o.Play("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSave_DerivedFilename(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("pcm")}}
	o, _, exporter := newOrchestrator(dev)
	record(t, o, 1)

	rec := o.List()[0]
	if err := o.Save(rec.ID); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(exporter.names) != 1 {
		t.Fatalf("Expected 1 export, got %d", len(exporter.names))
	}
	want := "recording_" + rec.CreatedAt.Format("20060102_150405") + ".wav"
	if exporter.names[0] != want {
		t.Errorf("Expected name %q, got %q", want, exporter.names[0])
	}
	if !bytes.Equal(exporter.artifacts[0], rec.Artifact) {
		t.Error("Expected the artifact to be handed to the exporter unchanged")
	}

	if err := o.Save("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestSave_ExporterFailure(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("pcm")}}
	o, _, exporter := newOrchestrator(dev)
	exporter.failWith = errors.New("disk full")
	record(t, o, 1)

	rec := o.List()[0]
	err := o.Save(rec.ID)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected wrapped exporter error, got %v", err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("x")}}
	o, _, _ := newOrchestrator(dev)
	record(t, o, 1)
	record(t, o, 2)

	recs := o.List()
	o.Delete(recs[0].ID)
	if o.Status().Count != 1 {
		t.Errorf("Expected 1 recording after delete, got %d", o.Status().Count)
	}

	// Deleting an unknown id is a no-op
	o.Delete("missing")
	if o.Status().Count != 1 {
		t.Errorf("Expected delete of unknown id to be a no-op, got %d", o.Status().Count)
	}

	o.ClearAll()
	st := o.Status()
	if st.Count != 0 || st.Selected != nil {
		t.Errorf("Expected empty store and no selection, got count=%d selected=%v", st.Count, st.Selected)
	}
}

func TestSessions_ProduceDistinctSelectedRecordings(t *testing.T) {
	dev := &scriptedDevice{chunks: [][]byte{[]byte("x")}}
	o, _, _ := newOrchestrator(dev)

	ids := map[string]bool{}
	for i := 1; i <= 3; i++ {
		record(t, o, i)
		sel := o.Status().Selected
		if sel == nil {
			t.Fatal("Expected a selection after each session")
		}
		if ids[sel.ID] {
			t.Errorf("Duplicate id across sessions: %s", sel.ID)
		}
		ids[sel.ID] = true

		// Newest first
		if o.List()[0].ID != sel.ID {
			t.Error("Expected the selected recording to be first in the list")
		}
	}
}
