package digest

import "testing"

func TestOfDeterministic(t *testing.T) {
	a := Of(1, "hello", 1700000000, "deadbeef")
	b := Of(1, "hello", 1700000000, "deadbeef")
	if a != b {
		t.Fatalf("digest not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestOfSensitiveToEveryField(t *testing.T) {
	base := Of(1, "hello", 1700000000, "deadbeef")

	variants := []string{
		Of(2, "hello", 1700000000, "deadbeef"),
		Of(1, "world", 1700000000, "deadbeef"),
		Of(1, "hello", 1700000001, "deadbeef"),
		Of(1, "hello", 1700000000, "beefdead"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d did not change digest", i)
		}
	}
}
