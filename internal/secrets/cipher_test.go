package secrets_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/secrets"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := secrets.NewCipher([]byte("master-key"))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	plain := []byte(`{"storage_account_key":"abc"}`)

	ct, err := c.Encrypt(plain)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ct, plain) {
		t.Fatal("ciphertext contains plaintext")
	}
	got, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("got %q, want %q", got, plain)
	}

	again, _ := c.Encrypt(plain)
	if bytes.Equal(again, ct) {
		t.Error("two encryptions share a nonce")
	}
}

func TestCipher_WrongKey(t *testing.T) {
	a, _ := secrets.NewCipher([]byte("key-a"))
	b, _ := secrets.NewCipher([]byte("key-b"))
	ct, err := a.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decrypt(ct); err == nil {
		t.Fatal("expected decrypt failure with wrong key")
	}
	if _, err := a.Decrypt([]byte("short")); err == nil {
		t.Fatal("expected error for short ciphertext")
	}
}

func TestCipherFromVault(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"KEY": "value123"}, nil
	})
	if _, err := secrets.CipherFromVault(v, "KEY"); err != nil {
		t.Fatalf("CipherFromVault: %v", err)
	}
	if _, err := secrets.CipherFromVault(v, "MISSING"); !errors.Is(err, secrets.ErrMissingKey) {
		t.Fatalf("got %v, want ErrMissingKey", err)
	}
}
