package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"api key", "okx-api-key-0123456789abcdef"},
		{"empty", ""},
		{"unicode", "ключ доступа"},
		{"long", strings.Repeat("secret", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if sealed == tt.plaintext && tt.plaintext != "" {
				t.Error("ciphertext equals plaintext")
			}

			got, err := Decrypt(sealed, key)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("round trip = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		key := make([]byte, n)
		if _, err := Encrypt("data", key); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Encrypt with %d-byte key: got %v, want ErrInvalidKeyLength", n, err)
		}
		if _, err := Decrypt("data", key); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Decrypt with %d-byte key: got %v, want ErrInvalidKeyLength", n, err)
		}
	}
}

func TestDecryptCorruptedInput(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	if _, err := Decrypt("not base64!!!", key); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("bad base64: got %v, want ErrInvalidCiphertext", err)
	}
	if _, err := Decrypt("c2hvcnQ=", key); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short ciphertext: got %v, want ErrCiphertextTooShort", err)
	}

	// Порча запечатанных данных должна ломать аутентификацию GCM
	sealed, err := Encrypt("secret value", key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	corrupted := []byte(sealed)
	corrupted[len(corrupted)-5] ^= 1
	if _, err := Decrypt(string(corrupted), key); err == nil {
		t.Error("corrupted ciphertext must not decrypt")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	sealed, err := Encrypt("secret", key1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, key2); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestKeyStringHelpers(t *testing.T) {
	key := strings.Repeat("k", 32)

	sealed, err := EncryptWithKeyString("exchange secret", key)
	if err != nil {
		t.Fatalf("EncryptWithKeyString: %v", err)
	}
	got, err := DecryptWithKeyString(sealed, key)
	if err != nil {
		t.Fatalf("DecryptWithKeyString: %v", err)
	}
	if got != "exchange secret" {
		t.Errorf("round trip = %q", got)
	}

	if _, err := EncryptWithKeyString("data", "short"); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("short string key: got %v, want ErrInvalidKeyLength", err)
	}
}
