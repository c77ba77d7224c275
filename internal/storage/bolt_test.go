package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"dynastore/internal/clock"
)

func openTestBolt(t *testing.T, name string) *BoltEngine {
	t.Helper()
	e, err := OpenBolt(filepath.Join(t.TempDir(), name+".db"), name)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestBoltEngine_PutGetRoundTrip(t *testing.T) {
	e := openTestBolt(t, "users")

	if e.Kind() != KindBolt {
		t.Fatalf("Expected kind %q, got %q", KindBolt, e.Kind())
	}

	v := Versioned{Value: []byte("alice"), Clock: clockAt(map[clock.NodeID]uint64{1: 2, 2: 1})}
	if err := e.Put([]byte("k1"), v); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := e.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected one sibling, got %d", len(got))
	}
	if string(got[0].Value) != "alice" {
		t.Errorf("Expected 'alice', got %q", got[0].Value)
	}
	if !got[0].Clock.Equal(v.Clock) {
		t.Errorf("Clock changed across persistence: %s != %s", got[0].Clock, v.Clock)
	}
}

func TestBoltEngine_RejectsObsoleteAndSupersedes(t *testing.T) {
	e := openTestBolt(t, "users")

	first := Versioned{Value: []byte("v1"), Clock: clockAt(map[clock.NodeID]uint64{1: 1})}
	if err := e.Put([]byte("k1"), first); err != nil {
		t.Fatal(err)
	}

	if err := e.Put([]byte("k1"), first); !errors.Is(err, ErrObsoleteVersion) {
		t.Fatalf("Expected ErrObsoleteVersion, got %v", err)
	}

	second := Versioned{Value: []byte("v2"), Clock: clockAt(map[clock.NodeID]uint64{1: 2})}
	if err := e.Put([]byte("k1"), second); err != nil {
		t.Fatal(err)
	}
	got, _ := e.Get([]byte("k1"))
	if len(got) != 1 || string(got[0].Value) != "v2" {
		t.Fatalf("Expected superseding write to win, got %v", got)
	}
}

func TestOpenBolt_LockedFileFailsInsteadOfBlocking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	e, err := OpenBolt(path, "users")
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer e.Close()

	if _, err := OpenBolt(path, "users"); err == nil {
		t.Fatal("Expected second open of a locked file to fail")
	}
}

func TestBoltEngine_DeleteAndEntries(t *testing.T) {
	e := openTestBolt(t, "sessions")

	for _, k := range []string{"b", "a"} {
		v := Versioned{Value: []byte(k), Clock: clockAt(map[clock.NodeID]uint64{1: 1})}
		if err := e.Put([]byte(k), v); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := e.Delete([]byte("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("Expected delete to remove key 'a'")
	}

	it, err := e.Entries()
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Entry().Key))
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("Expected only 'b' to remain, got %v", keys)
	}
}
