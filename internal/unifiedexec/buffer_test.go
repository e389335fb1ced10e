package unifiedexec

import (
	"bytes"
	"testing"
)

func TestHeadTailBufferRetainsCapWhenUnderflowing(t *testing.T) {
	b := newHeadTailBuffer(1024)
	b.push([]byte("hello"))
	if b.retainedBytes() != 5 {
		t.Fatalf("expected 5 retained bytes, got %d", b.retainedBytes())
	}
	if string(b.bytes()) != "hello" {
		t.Fatalf("unexpected bytes: %q", b.bytes())
	}
}

func TestHeadTailBufferPreservesPrefixAndSuffixOnOverflow(t *testing.T) {
	maxBytes := 1024
	b := newHeadTailBuffer(maxBytes)

	b.push(bytes.Repeat([]byte{'a'}, maxBytes))
	b.push([]byte("b"))
	b.push([]byte("c"))

	if b.retainedBytes() != maxBytes {
		t.Fatalf("expected retained bytes capped at %d, got %d", maxBytes, b.retainedBytes())
	}
	rendered := b.bytes()
	if rendered[0] != 'a' {
		t.Fatalf("expected rendered output to start with 'a', got %q", rendered[:1])
	}
	if !bytes.HasSuffix(rendered, []byte("bc")) {
		t.Fatalf("expected rendered output to end with \"bc\", got %q", rendered[len(rendered)-2:])
	}
}

func TestClampYieldTime(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{0, MinYieldTimeMS},
		{100, MinYieldTimeMS},
		{250, 250},
		{5000, 5000},
		{30000, MaxYieldTimeMS},
		{60000, MaxYieldTimeMS},
	}
	for _, c := range cases {
		if got := ClampYieldTime(c.in); got != c.want {
			t.Errorf("ClampYieldTime(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestResolveMaxTokensDefaultsWhenNil(t *testing.T) {
	if got := ResolveMaxTokens(nil); got != DefaultMaxOutputTokens {
		t.Fatalf("expected default of %d, got %d", DefaultMaxOutputTokens, got)
	}
	n := 42
	if got := ResolveMaxTokens(&n); got != 42 {
		t.Fatalf("expected explicit value 42, got %d", got)
	}
}
