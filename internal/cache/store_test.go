package cache

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore_GetSet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = ok %v, err %v; want false, nil", ok, err)
	}
	value := []byte("payload")
	if err := s.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[0] = 'X'
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v; want true, nil", ok, err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, want %q (stored copy)", got, "payload")
	}
}

// TestInMemoryStore_Expiry verifies that an entry is gone exactly at its expiry instant.
func TestInMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"), 10*time.Second)

	now = now.Add(10*time.Second - time.Nanosecond)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("Get() just before expiry ok = false, want true")
	}
	now = now.Add(time.Nanosecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("Get() at expiry ok = true, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy eviction", s.Len())
	}
}

func TestInMemoryStore_NonPositiveTTLDeletes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"), time.Minute)
	_ = s.Set(ctx, "k", []byte("v"), 0)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get() after zero-ttl Set ok = true, want false")
	}
}

func TestStoreKey(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		hashed bool
	}{
		{"plain key kept", "soil|lat=39.00|lon=32.00", false},
		{"spaces hashed", "knowledge|q=how deep wheat", true},
		{"long key hashed", string(make([]byte, 300)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storeKey(tt.key)
			if len(got) > maxMemcachedKeyLen {
				t.Errorf("storeKey length = %d, want <= %d", len(got), maxMemcachedKeyLen)
			}
			if hashed := got != keyPrefix+tt.key; hashed != tt.hashed {
				t.Errorf("storeKey(%q) hashed = %v, want %v", tt.key, hashed, tt.hashed)
			}
		})
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" a:11211, ,b:11211 ")
	if len(got) != 2 || got[0] != "a:11211" || got[1] != "b:11211" {
		t.Errorf("parseAddrs() = %v, want [a:11211 b:11211]", got)
	}
}
