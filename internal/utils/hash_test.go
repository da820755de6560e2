package utils

import "testing"

func TestStableIndex(t *testing.T) {
	if got := StableIndex("req-1", 0); got != -1 {
		t.Fatalf("expected -1 for empty range, got %d", got)
	}
	first := StableIndex("req-1", 2)
	for i := 0; i < 10; i++ {
		if got := StableIndex("req-1", 2); got != first {
			t.Fatalf("expected stable index %d, got %d", first, got)
		}
	}
	for _, key := range []string{"a", "b", "c", "req-42"} {
		if got := StableIndex(key, 3); got < 0 || got >= 3 {
			t.Fatalf("index %d out of range for %q", got, key)
		}
	}
}
