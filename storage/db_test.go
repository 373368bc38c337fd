package storage

import (
	"errors"
	"testing"
)

func fillDatabase(t *testing.T, db Database) {
	t.Helper()
	pairs := map[string]string{
		"loan/a/1": "a1",
		"loan/a/2": "a2",
		"loan/b/1": "b1",
		"other/x":  "x",
	}
	for key, value := range pairs {
		if err := db.Put([]byte(key), []byte(value)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
}

func testDatabase(t *testing.T, db Database) {
	t.Helper()
	fillDatabase(t, db)

	value, err := db.Get([]byte("loan/a/1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "a1" {
		t.Fatalf("value = %q, want a1", value)
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key: %v, want ErrNotFound", err)
	}
	ok, err := db.Has([]byte("loan/b/1"))
	if err != nil || !ok {
		t.Fatalf("has: ok=%v err=%v", ok, err)
	}

	var ascending []string
	err = db.Iterate([]byte("loan/"), false, func(key, _ []byte) bool {
		ascending = append(ascending, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"loan/a/1", "loan/a/2", "loan/b/1"}
	if len(ascending) != len(want) {
		t.Fatalf("keys = %v, want %v", ascending, want)
	}
	for i := range want {
		if ascending[i] != want[i] {
			t.Fatalf("keys = %v, want %v", ascending, want)
		}
	}

	var descending []string
	err = db.Iterate([]byte("loan/"), true, func(key, _ []byte) bool {
		descending = append(descending, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("reverse iterate: %v", err)
	}
	if descending[0] != "loan/b/1" || descending[2] != "loan/a/1" {
		t.Fatalf("reverse keys = %v", descending)
	}

	// Early stop.
	count := 0
	err = db.Iterate([]byte("loan/"), false, func(_, _ []byte) bool {
		count++
		return count < 2
	})
	if err != nil {
		t.Fatalf("bounded iterate: %v", err)
	}
	if count != 2 {
		t.Fatalf("visited = %d, want 2", count)
	}

	// Batched writes land together and overwrite existing keys.
	batch := db.NewBatch()
	batch.Put([]byte("loan/a/1"), []byte("a1-updated"))
	batch.Put([]byte("loan/c/1"), []byte("c1"))
	if err := db.Write(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	updated, err := db.Get([]byte("loan/a/1"))
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if string(updated) != "a1-updated" {
		t.Fatalf("updated = %q", updated)
	}
	added, err := db.Get([]byte("loan/c/1"))
	if err != nil {
		t.Fatalf("get added: %v", err)
	}
	if string(added) != "c1" {
		t.Fatalf("added = %q", added)
	}
}

func TestMemDB(t *testing.T) {
	testDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	testDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	stored, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "original" {
		t.Fatalf("stored = %q, caller mutation leaked in", stored)
	}
	stored[0] = 'Y'
	again, _ := db.Get([]byte("k"))
	if string(again) != "original" {
		t.Fatalf("stored = %q, reader mutation leaked in", again)
	}
}
