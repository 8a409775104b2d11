package backup

import (
	"bytes"
	"path/filepath"
	"testing"
)

// newTestKeyPair returns a key pair in a temp dir with a cheap scrypt cost.
func newTestKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	dir := t.TempDir()
	return &KeyPair{
		publicKeyPath:  filepath.Join(dir, "keys", "tcm.pub"),
		privateKeyPath: filepath.Join(dir, "keys", "tcm.key"),
		workFactor:     10,
	}
}

func TestKeyPair_Generate(t *testing.T) {
	k := newTestKeyPair(t)
	if k.Exists() {
		t.Fatal("Exists() = true before Generate")
	}

	if err := k.Generate("correct horse"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !k.Exists() {
		t.Error("Exists() = false after Generate")
	}

	if err := k.Generate("correct horse"); err == nil {
		t.Error("Generate() over an existing pair expected error")
	}
}

func TestKeyPair_Generate_EmptyPassphrase(t *testing.T) {
	if err := newTestKeyPair(t).Generate(""); err == nil {
		t.Error("Generate(\"\") expected error")
	}
}

func TestKeyPair_SealUnseal(t *testing.T) {
	k := newTestKeyPair(t)
	if err := k.Generate("correct horse"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	recipient, err := k.Recipient()
	if err != nil {
		t.Fatalf("Recipient() error = %v", err)
	}

	plaintext := bytes.Repeat([]byte("SQLite format 3\x00"), 1000)
	var sealed bytes.Buffer
	if err := seal(&sealed, bytes.NewReader(plaintext), recipient); err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	if bytes.Contains(sealed.Bytes(), []byte("SQLite format 3")) {
		t.Error("sealed output contains plaintext")
	}

	t.Run("wrong passphrase", func(t *testing.T) {
		if _, err := k.Unlock("battery staple"); err == nil {
			t.Error("Unlock() with wrong passphrase expected error")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		identity, err := k.Unlock("correct horse")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		var opened bytes.Buffer
		if err := unseal(&opened, bytes.NewReader(sealed.Bytes()), identity); err != nil {
			t.Fatalf("unseal() error = %v", err)
		}
		if !bytes.Equal(opened.Bytes(), plaintext) {
			t.Error("unsealed data differs from plaintext")
		}
	})
}
