package readmodel

import (
	"errors"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	tok := encodeToken("acme", "d|b42")
	if tok == "" {
		t.Fatalf("empty token")
	}
	pk, rk, err := decodeToken(tok)
	if err != nil || pk != "acme" || rk != "d|b42" {
		t.Fatalf("decode = %q, %q, %v", pk, rk, err)
	}
}

func TestTokenEmptyParts(t *testing.T) {
	if encodeToken("", "rk") != "" || encodeToken("pk", "") != "" {
		t.Fatalf("tokens for empty keys should be empty")
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, tok := range []string{"not base64!!", "AAAA", "", "AAAAAAAA"} {
		if _, _, err := decodeToken(tok); !errors.Is(err, ErrBadToken) {
			t.Fatalf("decodeToken(%q) = %v, want ErrBadToken", tok, err)
		}
	}
	// Length prefixes that do not match the payload length.
	forged := encodeToken("acme", "d|x")
	if _, _, err := decodeToken(forged + "AAAA"); !errors.Is(err, ErrBadToken) {
		t.Fatalf("padded token accepted")
	}
}

func TestResumeKeyBindsTenant(t *testing.T) {
	tok := encodeToken("acme", "d|b1")
	rk, err := resumeKey(tok, "acme")
	if err != nil || rk != "d|b1" {
		t.Fatalf("resumeKey = %q, %v", rk, err)
	}
	if _, err := resumeKey(tok, "other"); !errors.Is(err, ErrBadToken) {
		t.Fatalf("foreign tenant token accepted: %v", err)
	}
	rk, err = resumeKey("", "acme")
	if err != nil || rk != "" {
		t.Fatalf("empty token = %q, %v", rk, err)
	}
}
