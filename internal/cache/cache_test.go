package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRU_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Set(ctx, "c", []byte("3"))

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if got, ok := c.Get(ctx, "c"); !ok || string(got) != "3" {
		t.Errorf("Get(c) = %q, %v, want 3, true", got, ok)
	}
	c.Delete(ctx, "c")
	if _, ok := c.Get(ctx, "c"); ok {
		t.Error("deleted entry still present")
	}
}

func TestLRU_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 20*time.Millisecond)
	c.Set(ctx, "k", []byte("v"))
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("entry should have expired")
	}
}
