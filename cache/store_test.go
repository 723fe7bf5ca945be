package cache

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/chazu/esdraft/compiler/code"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func archive(main string) *code.Archive {
	return &code.Archive{
		Main:  main,
		Units: []code.Artifact{{Name: main, Data: []byte{0xa0}}},
	}
}

func TestPutGet(t *testing.T) {
	s := openStore(t)
	if _, ok, err := s.Get("k1"); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	want := archive("#Main")
	if err := s.Put("k1", "#Main", want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get("k1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestPutReplaces(t *testing.T) {
	s := openStore(t)
	if err := s.Put("k", "#A", archive("#A")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", "#B", archive("#B")); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got.Main != "#B" {
		t.Errorf("main = %s, want #B", got.Main)
	}
	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Unit != "#B" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestListAndPurge(t *testing.T) {
	s := openStore(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Put(k, "#"+k, archive("#"+k)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Size == 0 || e.Created.IsZero() {
			t.Errorf("entry %+v missing size or time", e)
		}
	}

	n, err := s.Purge(time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Errorf("Purge(past) = %d, %v", n, err)
	}
	n, err = s.Purge(time.Time{})
	if err != nil || n != 3 {
		t.Errorf("Purge(all) = %d, %v", n, err)
	}
	if entries, _ := s.List(); len(entries) != 0 {
		t.Errorf("entries after purge = %+v", entries)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", "#Main", archive("#Main")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok, err := s.Get("k"); err != nil || !ok {
		t.Errorf("Get after reopen = %v, %v", ok, err)
	}
}

func TestClosedStore(t *testing.T) {
	s := openStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, _, err := s.Get("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if err := s.Put("k", "#M", archive("#M")); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
}
