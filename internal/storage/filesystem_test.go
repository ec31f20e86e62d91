package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	ctx := context.Background()
	url, err := store.Put(ctx, "jobs/abc/original.jpg", []byte("payload"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if url != "http://localhost:8080/static/jobs/abc/original.jpg" {
		t.Fatalf("URL mismatch: got %q", url)
	}

	data, err := store.Get(ctx, "jobs/abc/original.jpg")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Fatalf("payload mismatch: got %q", data)
	}
}

func TestFileStoreRemovePrefix(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Put(ctx, "jobs/abc/original.jpg", []byte("a"), "image/jpeg"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := store.Put(ctx, "jobs/abc/retouched.jpg", []byte("b"), "image/jpeg"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := store.Put(ctx, "jobs/other/original.jpg", []byte("c"), "image/jpeg"); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if err := store.RemovePrefix(ctx, "jobs/abc"); err != nil {
		t.Fatalf("RemovePrefix returned error: %v", err)
	}
	if _, err := store.Get(ctx, "jobs/abc/original.jpg"); err == nil {
		t.Fatal("expected removed key to be gone")
	}
	if _, err := store.Get(ctx, "jobs/other/original.jpg"); err != nil {
		t.Fatalf("unrelated key must survive: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	if _, err := store.Put(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
	if _, err := store.Put(context.Background(), "", []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
}
