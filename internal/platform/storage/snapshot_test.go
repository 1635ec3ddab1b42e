package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

// exerciseSnapshot runs the behaviour every Snapshot must share.
func exerciseSnapshot(t *testing.T, s Snapshot) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() on empty store: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil blob before first write, got %q", got)
	}

	if err := s.Update(ctx, func(cur []byte) ([]byte, error) {
		if cur != nil {
			t.Errorf("expected nil current blob, got %q", cur)
		}
		return []byte(`[1]`), nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err = s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(got) != `[1]` {
		t.Errorf("Read() = %q, want [1]", got)
	}

	boom := errors.New("boom")
	if err := s.Update(ctx, func([]byte) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error to be returned, got %v", err)
	}
	got, _ = s.Read(ctx)
	if string(got) != `[1]` {
		t.Errorf("failed update must not write, got %q", got)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

// exerciseConcurrentUpdates checks that no read-modify-write is lost.
func exerciseConcurrentUpdates(t *testing.T, s Snapshot, writers int) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(cur []byte) ([]byte, error) {
				n := 0
				if cur != nil {
					n, _ = strconv.Atoi(string(cur))
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
			if err != nil {
				t.Errorf("Update() error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(got) != strconv.Itoa(writers) {
		t.Errorf("expected counter %d, got %s", writers, got)
	}
}

func TestFileSnapshot(t *testing.T) {
	s, err := NewFileSnapshot(t.TempDir(), DefaultKey)
	if err != nil {
		t.Fatalf("NewFileSnapshot() error: %v", err)
	}
	exerciseSnapshot(t, s)
}

func TestFileSnapshot_Concurrent(t *testing.T) {
	s, err := NewFileSnapshot(t.TempDir(), DefaultKey)
	if err != nil {
		t.Fatalf("NewFileSnapshot() error: %v", err)
	}
	exerciseConcurrentUpdates(t, s, 20)
}

func TestFileSnapshot_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshot(dir, DefaultKey)
	if err != nil {
		t.Fatalf("NewFileSnapshot() error: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Update(ctx, func([]byte) ([]byte, error) { return []byte("[]"), nil }); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DefaultKey+".json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only %s.json, got %v", DefaultKey, names)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultKey+".json")); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
}

func TestMemorySnapshot(t *testing.T) {
	exerciseSnapshot(t, NewMemorySnapshot(nil))
	exerciseConcurrentUpdates(t, NewMemorySnapshot(nil), 20)
}

func TestEncryptedSnapshot(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	inner := NewMemorySnapshot(nil)
	s, err := NewEncryptedSnapshot(inner, key)
	if err != nil {
		t.Fatalf("NewEncryptedSnapshot() error: %v", err)
	}
	exerciseSnapshot(t, s)

	raw, _ := inner.Read(context.Background())
	if !bytes.HasPrefix(raw, sealedPrefix) {
		t.Errorf("expected sealed blob, got %q", raw)
	}
	if bytes.Contains(raw, []byte("[1]")) {
		t.Error("plaintext leaked into stored blob")
	}
}

func TestEncryptedSnapshot_ReadsLegacyPlaintext(t *testing.T) {
	inner := NewMemorySnapshot([]byte(`[{"id":"a"}]`))
	s, err := NewEncryptedSnapshot(inner, bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("NewEncryptedSnapshot() error: %v", err)
	}
	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("Read() = %q", got)
	}
}

func TestEncryptedSnapshot_WrongKey(t *testing.T) {
	inner := NewMemorySnapshot(nil)
	a, _ := NewEncryptedSnapshot(inner, bytes.Repeat([]byte{1}, 32))
	b, _ := NewEncryptedSnapshot(inner, bytes.Repeat([]byte{2}, 32))

	ctx := context.Background()
	if err := a.Update(ctx, func([]byte) ([]byte, error) { return []byte("secret"), nil }); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if _, err := b.Read(ctx); err == nil {
		t.Fatal("expected decrypt error with the wrong key")
	}
}

func TestNewEncryptedSnapshot_KeySize(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewEncryptedSnapshot(NewMemorySnapshot(nil), make([]byte, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}
