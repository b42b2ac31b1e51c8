package regcache

import (
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, ok := s.Get("O1"); ok {
		t.Fatalf("empty store should miss")
	}
	e := Entry{Status: "accepted", Quantity: 5, Total: 50.0, Version: 1}
	if err := s.Put("O1", e); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := s.Get("O1")
	if !ok || got != e {
		t.Fatalf("get mismatch: %+v ok=%v", got, ok)
	}
}

func TestMemoryStore_Range(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	_ = s.Put("O1", Entry{Version: 1})
	_ = s.Put("O2", Entry{Version: 2})

	seen := map[string]int64{}
	err := s.Range(func(orderID string, e Entry) error {
		seen[orderID] = e.Version
		return nil
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(seen) != 2 || seen["O2"] != 2 {
		t.Fatalf("unexpected range contents: %+v", seen)
	}
}

func TestPebbleStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	e := Entry{Status: "denied", Quantity: 3, Total: 9.99, Version: 2}
	if err := s.Put("O7", e); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := s.Get("O7")
	if !ok || got != e {
		t.Fatalf("get mismatch: %+v ok=%v", got, ok)
	}
	if _, ok := s.Get("absent"); ok {
		t.Fatalf("absent key should miss")
	}
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e := Entry{Status: "accepted", Quantity: 1, Total: 10.0, Version: 1}
	if err := s.Put("O1", e); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, ok := s2.Get("O1")
	if !ok || got != e {
		t.Fatalf("entry lost across reopen: %+v ok=%v", got, ok)
	}
}

func TestPebbleStore_Range(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	_ = s.Put("O1", Entry{Version: 1})
	_ = s.Put("O2", Entry{Version: 2})

	var count int
	err = s.Range(func(orderID string, e Entry) error {
		count++
		return nil
	})
	if err != nil || count != 2 {
		t.Fatalf("range: err=%v count=%d", err, count)
	}
}
