package cache

import (
	"context"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	tests := []struct {
		ns    string
		parts []string
		want  string
	}{
		{"coins:list", []string{"1", "20", ""}, "ct:coins:list:1:20:"},
		{"coins:detail", []string{"bitcoin"}, "ct:coins:detail:bitcoin"},
		{"coins:chart", []string{"bitcoin", "7"}, "ct:coins:chart:bitcoin:7"},
	}
	for _, tt := range tests {
		if got := Key(tt.ns, tt.parts...); got != tt.want {
			t.Errorf("Key(%q, %v) = %q, want %q", tt.ns, tt.parts, got, tt.want)
		}
	}
}

func TestKey_OrderSensitive(t *testing.T) {
	if Key("ns", "a", "b") == Key("ns", "b", "a") {
		t.Error("parameter order must affect the key")
	}
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok := m.Get(ctx, "coins:detail", "bitcoin"); ok {
		t.Fatal("expected miss on empty store")
	}

	m.Set(ctx, "coins:detail", []byte(`{"id":"bitcoin"}`), time.Minute, "bitcoin")
	b, ok := m.Get(ctx, "coins:detail", "bitcoin")
	if !ok {
		t.Fatal("expected hit after set")
	}
	if string(b) != `{"id":"bitcoin"}` {
		t.Errorf("unexpected value: %s", b)
	}

	// Different parameters miss.
	if _, ok := m.Get(ctx, "coins:detail", "ethereum"); ok {
		t.Error("expected miss for different key parts")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "coins:list", []byte("payload"), 30*time.Millisecond, "1", "20", "")
	if _, ok := m.Get(ctx, "coins:list", "1", "20", ""); !ok {
		t.Fatal("expected hit within TTL")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := m.Get(ctx, "coins:list", "1", "20", ""); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestMemory_OverwriteLastWriteWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "coins:detail", []byte("old"), time.Minute, "bitcoin")
	m.Set(ctx, "coins:detail", []byte("new"), time.Minute, "bitcoin")

	b, ok := m.Get(ctx, "coins:detail", "bitcoin")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(b) != "new" {
		t.Errorf("got %q, want the newer value", b)
	}
}
