package checkpointer

import (
	"encoding/gob"
	"os"
	"reflect"
	"testing"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	if err := Gob(s, "b", []float64{1, 2}); err != nil {
		t.Fatalf("gob: %v", err)
	}
	if err := Gob(s, "a", "hello"); err != nil {
		t.Fatalf("gob: %v", err)
	}
	if names := s.Names(); !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("names = %v, want [a b]", names)
	}

	r, err := s.Open("b")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var v []float64
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(v, []float64{1, 2}) {
		t.Errorf("decoded %v, want [1 2]", v)
	}
	if _, err := s.Open("c"); err == nil {
		t.Errorf("open: expected error for a missing blob")
	}
}

func TestDirStore(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("newDirStore: %v", err)
	}
	if err := Gob(s, "metrics", map[string]int{"steps": 3}); err != nil {
		t.Fatalf("gob: %v", err)
	}

	file, err := os.Open(s.Path("metrics"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	var m map[string]int
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["steps"] != 3 {
		t.Errorf("decoded %v", m)
	}
}
