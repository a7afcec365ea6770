package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestNewAESGCMKeySize(t *testing.T) {
	if _, err := NewAESGCM([]byte("short")); !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("want ErrInvalidKeySize, got %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	aead, err := NewAESGCM(testKey())
	if err != nil {
		t.Fatal(err)
	}
	ct1, _ := Encrypt(aead, []byte("secret"))
	ct2, _ := Encrypt(aead, []byte("secret"))
	if bytes.Equal(ct1, ct2) {
		t.Fatal("two encryptions produced the same ciphertext")
	}
	pt, err := Decrypt(aead, ct1)
	if err != nil || string(pt) != "secret" {
		t.Fatalf("Decrypt = %q, %v", pt, err)
	}

	ct1[len(ct1)-1] ^= 0xff
	if _, err := Decrypt(aead, ct1); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("tampered: want ErrAuthenticationFailed, got %v", err)
	}
	if _, err := Decrypt(aead, []byte{1}); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("short: want ErrInvalidCiphertext, got %v", err)
	}
}

func TestSealOpenJSON(t *testing.T) {
	aead, _ := NewAESGCM(testKey())
	sealed, err := SealJSON(aead, map[string]string{"internal_integration_secret": "secret_abc"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(sealed), `{"encrypted":"`) || strings.Contains(string(sealed), "secret_abc") {
		t.Fatalf("unexpected envelope: %s", sealed)
	}

	var out map[string]string
	if err := OpenJSON(aead, sealed, &out); err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	if out["internal_integration_secret"] != "secret_abc" {
		t.Fatalf("round trip lost value: %v", out)
	}

	if err := OpenJSON(aead, []byte(`{}`), &out); !errors.Is(err, ErrInvalidEnvelope) {
		t.Fatalf("empty envelope: want ErrInvalidEnvelope, got %v", err)
	}
}
