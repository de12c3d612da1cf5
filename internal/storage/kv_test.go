package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestKVBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) KV{
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
		"file": func(t *testing.T) KV {
			kv, err := NewFileKV(filepath.Join(t.TempDir(), "state"))
			if err != nil {
				t.Fatalf("NewFileKV() error = %v", err)
			}
			return kv
		},
		"sqlite": func(t *testing.T) KV {
			kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "state.db"))
			if err != nil {
				t.Fatalf("NewSQLiteKV() error = %v", err)
			}
			return kv
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := open(t)
			defer func() { _ = kv.Close() }()

			if _, ok, err := kv.Get(ctx, "messages"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
			}
			if err := kv.Set(ctx, "messages", []byte(`[1]`)); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := kv.Set(ctx, "messages", []byte(`[1,2]`)); err != nil {
				t.Fatalf("Set(overwrite) error = %v", err)
			}
			got, ok, err := kv.Get(ctx, "messages")
			if err != nil || !ok {
				t.Fatalf("Get() = ok %v, err %v", ok, err)
			}
			if string(got) != `[1,2]` {
				t.Fatalf("Get() = %s, want [1,2]", got)
			}
			if err := kv.Delete(ctx, "messages"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := kv.Delete(ctx, "messages"); err != nil {
				t.Fatalf("Delete(missing) error = %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "messages"); ok {
				t.Fatalf("key still present after Delete")
			}
		})
	}
}

func TestFileKVSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	if err := kv.Set(ctx, "websocketConnections", []byte(`[]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	got, ok, err := reopened.Get(ctx, "websocketConnections")
	if err != nil || !ok || string(got) != `[]` {
		t.Fatalf("Get() = %q ok=%v err=%v", got, ok, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", ""); err == nil {
		t.Fatalf("Open(redis) error = nil")
	}
}

func TestMemoryKVCopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	value := []byte("abc")
	_ = kv.Set(ctx, "k", value)
	value[0] = 'x'
	got, _, _ := kv.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %s", got)
	}
}
