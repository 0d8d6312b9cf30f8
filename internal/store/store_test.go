package store

import (
	"errors"
	"testing"
	"time"
)

func newRec(id string) *Recording {
	return &Recording{ID: id, Artifact: []byte(id), CreatedAt: time.Now()}
}

func TestInsert_OrderAndSelection(t *testing.T) {
	s := New()

	a := newRec("a")
	b := newRec("b")
	s.Insert(a)
	s.Insert(b)

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(list))
	}
	// Most-recent-first: b was inserted last, so it comes first
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Errorf("Expected order [b a], got [%s %s]", list[0].ID, list[1].ID)
	}

	sel, ok := s.Selected()
	if !ok || sel.ID != "b" {
		t.Errorf("Expected newest insert to be selected, got %v (ok=%v)", sel, ok)
	}
}

func TestSelect_UnknownID(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))

	if err := s.Select("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}

	// Selection must be unchanged after a failed select
	sel, ok := s.Selected()
	if !ok || sel.ID != "a" {
		t.Errorf("Expected selection to remain 'a', got %v (ok=%v)", sel, ok)
	}
}

func TestDelete_SelectedClearsSelection(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))
	s.Insert(newRec("b"))

	s.Delete("b")

	if s.Len() != 1 {
		t.Fatalf("Expected 1 recording after delete, got %d", s.Len())
	}
	if _, ok := s.Selected(); ok {
		t.Error("Expected selection to be empty after deleting the selected recording")
	}

	// delete(id) followed by select(id) leaves selection empty
	if err := s.Select("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound selecting a deleted id, got %v", err)
	}
	if _, ok := s.Selected(); ok {
		t.Error("Expected selection to stay empty after failed select")
	}
}

func TestDelete_UnknownIDIsNoOp(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))

	s.Delete("missing")

	if s.Len() != 1 {
		t.Errorf("Expected store unchanged, got %d recordings", s.Len())
	}
	sel, ok := s.Selected()
	if !ok || sel.ID != "a" {
		t.Errorf("Expected selection unchanged, got %v (ok=%v)", sel, ok)
	}
}

func TestDelete_UnselectedKeepsSelection(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))
	s.Insert(newRec("b"))

	s.Delete("a")

	sel, ok := s.Selected()
	if !ok || sel.ID != "b" {
		t.Errorf("Expected 'b' to remain selected, got %v (ok=%v)", sel, ok)
	}
}

func TestClear(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))
	s.Insert(newRec("b"))

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Expected empty store after clear, got %d", s.Len())
	}
	if _, ok := s.Selected(); ok {
		t.Error("Expected no selection after clear")
	}

	// Clearing an already-empty store is fine
	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Expected store to stay empty, got %d", s.Len())
	}
}

func TestGet(t *testing.T) {
	s := New()
	a := newRec("a")
	s.Insert(a)

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Expected Get to succeed, got %v", err)
	}
	if got != a {
		t.Error("Expected Get to return the inserted recording")
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDeselect(t *testing.T) {
	s := New()
	s.Insert(newRec("a"))

	s.Deselect()

	if _, ok := s.Selected(); ok {
		t.Error("Expected no selection after Deselect")
	}
	// The recording itself stays in the store
	if s.Len() != 1 {
		t.Errorf("Expected 1 recording, got %d", s.Len())
	}
}
