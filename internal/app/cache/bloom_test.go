package cache

import "testing"

func TestBloomFilter(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)
	if b.MightExist("abc123") {
		t.Fatal("empty filter must not report membership")
	}

	b.Add("abc123")
	b.Seed([]string{"promo", "xyz789"})
	for _, s := range []string{"abc123", "promo", "xyz789"} {
		if !b.MightExist(s) {
			t.Fatalf("expected %q to be present", s)
		}
	}
	if c := b.Count(); c < 2 || c > 4 {
		t.Fatalf("unexpected approximate size %d", c)
	}
}
