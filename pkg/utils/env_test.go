package utils

import "testing"

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("WEAVE_TEST_KEY", "value")
	if got := EnvOrDefault("WEAVE_TEST_KEY", "fallback"); got != "value" {
		t.Fatalf("got %q", got)
	}
	if got := EnvOrDefault("WEAVE_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	t.Setenv("WEAVE_TEST_EMPTY", "")
	if got := EnvOrDefault("WEAVE_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Fatalf("empty value not treated as unset: %q", got)
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	t.Setenv("WEAVE_TEST_INT", "42")
	if got := EnvOrDefaultInt("WEAVE_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("WEAVE_TEST_INT", "not-a-number")
	if got := EnvOrDefaultInt("WEAVE_TEST_INT", 7); got != 7 {
		t.Fatalf("unparsable value did not fall back: %d", got)
	}
}

func TestEnvOrDefaultUint64(t *testing.T) {
	t.Setenv("WEAVE_TEST_U64", "18446744073709551615")
	if got := EnvOrDefaultUint64("WEAVE_TEST_U64", 1); got != 18446744073709551615 {
		t.Fatalf("got %d", got)
	}
	if got := EnvOrDefaultUint64("WEAVE_TEST_U64_MISSING", 9); got != 9 {
		t.Fatalf("got %d", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Fatalf("wrapping nil produced an error")
	}
}
