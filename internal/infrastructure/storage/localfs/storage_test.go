package localfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	ctx := context.Background()
	if err := storage.Save(ctx, "340AC0000000033.xml", strings.NewReader("<Law/>")); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := storage.Open(ctx, "340AC0000000033.xml")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "<Law/>" {
		t.Fatalf("content = %q", raw)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	ctx := context.Background()
	for _, key := range []string{"", "../secret.xml", "sub/dir.xml", ".hidden"} {
		if err := storage.Save(ctx, key, strings.NewReader("x")); err == nil {
			t.Fatalf("key %q accepted", key)
		}
		if _, err := storage.Open(ctx, key); err == nil {
			t.Fatalf("key %q accepted on open", key)
		}
	}
}
