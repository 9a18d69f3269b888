package synth

import (
	"context"
	"testing"
)

func TestMemoryObjectStorePut(t *testing.T) {
	store := NewMemoryObjectStore("")

	url, err := store.Put(context.Background(), "img.png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "memory:///img.png" && url != "memory://img.png" {
		t.Fatalf("url = %q", url)
	}

	data, ok := store.Get("img.png")
	if !ok || len(data) != 3 {
		t.Fatalf("stored data = %v", data)
	}
}

func TestMemoryObjectStoreCopiesData(t *testing.T) {
	store := NewMemoryObjectStore("s3://bucket")

	payload := []byte("original")
	if _, err := store.Put(context.Background(), "f", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload[0] = 'X'

	data, _ := store.Get("f")
	if string(data) != "original" {
		t.Fatalf("store shares caller's buffer: %q", data)
	}
}
