package cache

import (
	"testing"
	"time"
)

func TestRistrettoCacheSetGetDel(t *testing.T) {
	c, err := NewRistrettoCache(16)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	c.Set("k", "v", time.Minute)
	c.Wait()

	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get(k) = %v, %v; want v, true", got, ok)
	}

	c.Del("k")
	c.Wait()
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after Del")
	}
}

func TestRistrettoCacheDefaultsSize(t *testing.T) {
	c, err := NewRistrettoCache(0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	var _ Cache = c
}
