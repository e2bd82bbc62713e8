package tokens

import (
	"strings"
	"testing"
)

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken(32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateOpaqueToken(32)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("expected url-safe token, got %q", a)
	}
}

func TestRandomID(t *testing.T) {
	id, err := RandomID(16)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 16 {
		t.Fatalf("expected 16 chars, got %d", len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(idAlphabet, c) {
			t.Fatalf("unexpected character %q", c)
		}
	}
	if strings.ContainsAny(id, "01IlO") {
		t.Fatalf("ambiguous character in %q", id)
	}
}

func TestSHA256Base64(t *testing.T) {
	// valor fijo conocido para "abc"
	if got := SHA256Base64("abc"); got != "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=" {
		t.Fatalf("unexpected base64 digest %q", got)
	}
}
