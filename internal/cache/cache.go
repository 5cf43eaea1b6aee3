// Package cache provides the byte-oriented TTL caches used for workspace settings.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a TTL key/value cache. Implementations treat backend failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
	Delete(ctx context.Context, key string)
}

// LRU is an in-process expirable LRU.
type LRU struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRU creates an LRU cache with the given capacity and TTL.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 256
	}
	return &LRU{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *LRU) Set(_ context.Context, key string, val []byte) {
	c.lru.Add(key, val)
}

func (c *LRU) Delete(_ context.Context, key string) {
	c.lru.Remove(key)
}

// Len reports the number of live entries.
func (c *LRU) Len() int { return c.lru.Len() }
