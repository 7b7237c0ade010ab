package cache

import (
	"testing"
	"time"
)

func TestGetFreshRespectsExpiry(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Unix(1000, 0)

	m.Set("k", 42, now, 5*time.Second)
	if v, ok := m.GetFresh("k", now.Add(4*time.Second)); !ok || v != 42 {
		t.Fatalf("fresh read = (%d, %v)", v, ok)
	}
	if _, ok := m.GetFresh("k", now.Add(5*time.Second)); ok {
		t.Fatalf("entry readable at its expiry instant")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Unix(1000, 0)

	m.Set("k", 1, now, 0)
	if _, ok := m.GetFresh("k", now.Add(1000*time.Hour)); !ok {
		t.Fatalf("zero-ttl entry expired")
	}
	if dropped := m.EvictExpired(now.Add(1000 * time.Hour)); dropped != 0 {
		t.Fatalf("EvictExpired dropped %d zero-ttl entries", dropped)
	}
}

func TestLastWriterWins(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Unix(1000, 0)

	m.Set("k", 1, now, time.Minute)
	m.Set("k", 2, now, time.Minute)
	if v, _ := m.GetFresh("k", now); v != 2 {
		t.Fatalf("value = %d, want 2", v)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
}

func TestEvictExpiredReportsDropped(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Unix(1000, 0)

	m.Set("a", 1, now, time.Second)
	m.Set("b", 2, now, time.Second)
	m.Set("c", 3, now, time.Hour)

	if dropped := m.EvictExpired(now.Add(2 * time.Second)); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d after eviction, want 1", m.Len())
	}
}

func TestDelete(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Unix(1000, 0)

	m.Set("k", 1, now, 0)
	m.Delete("k")
	if _, ok := m.GetFresh("k", now); ok {
		t.Fatalf("deleted entry still readable")
	}
}

func TestNilMapIsSafe(t *testing.T) {
	var m *TTLMap[string, int]
	m.Set("k", 1, time.Now(), 0)
	if _, ok := m.GetFresh("k", time.Now()); ok {
		t.Fatalf("nil map returned a value")
	}
	if m.Len() != 0 || m.EvictExpired(time.Now()) != 0 {
		t.Fatalf("nil map reports entries")
	}
}
