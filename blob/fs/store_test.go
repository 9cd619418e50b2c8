package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/blight/blob"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)

	info, err := store.Put(ctx, "run/mortality_1.bin", bytes.NewReader([]byte("hello")), blob.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "run/mortality_1.bin" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "run", "mortality_1.bin")); err != nil {
		t.Fatalf("data file missing: %v", err)
	}

	h, err := store.Head(ctx, "run/mortality_1.bin")
	if err != nil || h.ETag != info.ETag || h.Metadata["k"] != "v" {
		t.Fatalf("head: %v %+v", err, h)
	}

	_, rc, err := store.Get(ctx, "run/mortality_1.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello" {
		t.Fatalf("content = %q", b)
	}

	if _, err := store.Put(ctx, "run/mortality_2.bin", bytes.NewReader(nil), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, "other.bin", bytes.NewReader(nil), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	list, err := store.List(ctx, "run/")
	if err != nil || len(list) != 2 || list[0].Key != "run/mortality_1.bin" {
		t.Fatalf("list: %v %+v", err, list)
	}

	if ok, err := store.Delete(ctx, "run/mortality_1.bin"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "run/mortality_1.bin"); ok {
		t.Fatal("second delete reported true")
	}
	if _, _, err := store.Get(ctx, "run/mortality_1.bin"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if _, err := store.Head(ctx, "run/mortality_1.bin"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("one")), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	info, err := store.Put(ctx, "k", bytes.NewReader([]byte("three")), blob.PutOptions{})
	if err != nil || info.Size != 5 {
		t.Fatalf("overwrite: %v %+v", err, info)
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "../escape", "/abs"} {
		t.Run(key, func(t *testing.T) {
			if _, err := store.Put(ctx, key, bytes.NewReader(nil), blob.PutOptions{}); err == nil {
				t.Fatalf("expected error for key %q", key)
			}
		})
	}
}

func TestNew_EmptyRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
