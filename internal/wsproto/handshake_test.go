package wsproto

import "testing"

func TestAcceptKeyRFC6455Vector(t *testing.T) {
	got, err := AcceptKey([]byte("dGhlIHNhbXBsZSBub25jZQ=="))
	if err != nil {
		t.Fatalf("AcceptKey returned error: %v", err)
	}
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

func TestAcceptKeyTooLong(t *testing.T) {
	huge := make([]byte, 200)
	for i := range huge {
		huge[i] = 'a'
	}
	if _, err := AcceptKey(huge); err != ErrKeyTooLong {
		t.Errorf("expected ErrKeyTooLong, got %v", err)
	}
}
