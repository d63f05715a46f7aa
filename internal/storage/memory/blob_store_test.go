package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "metadata/page=1.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://metadata/page=1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, contentType, ok := store.Object("metadata/page=1.json")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "application/json" {
		t.Fatalf("expected content type to be recorded, got %q", contentType)
	}
}

func TestBlobStoreExists(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ok, err := store.Exists(context.Background(), "metadata/page=2.json")
	if err != nil || ok {
		t.Fatalf("Exists() before put = %v, %v", ok, err)
	}
	if _, err := store.PutObject(context.Background(), "metadata/page=2.json", "", bytes.NewReader(nil)); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	ok, err = store.Exists(context.Background(), "metadata/page=2.json")
	if err != nil || !ok {
		t.Fatalf("Exists() after put = %v, %v", ok, err)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "metadata/page=2.json" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
