package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewDataKey()
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := EncryptAESWithAAD(plainText, key, aad)
		if err != nil {
			t.Fatalf("EncryptAESWithAAD failed: %v", err)
		}

		decrypted, err := DecryptAESWithAAD(cipherText, key, aad)
		if err != nil {
			t.Fatalf("DecryptAESWithAAD failed: %v", err)
		}

		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("ServerKeySize", func(t *testing.T) {
		serverKey, err := NewServerKey()
		if err != nil {
			t.Fatalf("NewServerKey failed: %v", err)
		}
		if len(serverKey) != ServerKeySize {
			t.Fatalf("expected %d-byte key, got %d", ServerKeySize, len(serverKey))
		}

		cipherText, err := EncryptAES(plainText, serverKey)
		if err != nil {
			t.Fatalf("EncryptAES failed: %v", err)
		}
		decrypted, err := DecryptAES(cipherText, serverKey)
		if err != nil {
			t.Fatalf("DecryptAES failed: %v", err)
		}
		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		_, err := DecryptAESWithAAD(cipherText, key, []byte("wrong context"))
		if err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAESWithAAD(plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		_, err := DecryptAESWithAAD(cipherText, key, aad)
		if err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, err := EncryptAESWithAAD(plainText, []byte("too short"), aad)
		if err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
		_, err = DecryptAESWithAAD([]byte("irrelevant"), []byte("too short"), aad)
		if err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})

	t.Run("FreshNonce", func(t *testing.T) {
		a, _ := EncryptAES(plainText, key)
		b, _ := EncryptAES(plainText, key)
		if bytes.Equal(a[:GCMNonceSize], b[:GCMNonceSize]) {
			t.Error("expected distinct nonces for repeated encryption")
		}
	})
}

func TestXor(t *testing.T) {
	t.Run("SelfInverse", func(t *testing.T) {
		a := []byte{0x01, 0x02, 0x03, 0x04}
		b := []byte{0xFF, 0x00, 0xAA, 0x55}

		c, err := Xor(a, b)
		if err != nil {
			t.Fatalf("Xor failed: %v", err)
		}
		back, err := Xor(c, b)
		if err != nil {
			t.Fatalf("Xor failed: %v", err)
		}
		if !bytes.Equal(a, back) {
			t.Errorf("expected %v, got %v", a, back)
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := Xor([]byte{1, 2}, []byte{1, 2, 3})
		if err == nil {
			t.Error("expected error with mismatched lengths, got nil")
		}
	})
}

func TestRandomChars(t *testing.T) {
	t.Run("Length", func(t *testing.T) {
		for _, n := range []int{0, 1, 10, 26} {
			s, err := RandomChars(n)
			if err != nil {
				t.Fatalf("RandomChars(%d) failed: %v", n, err)
			}
			if len(s) != n {
				t.Errorf("expected %d chars, got %d", n, len(s))
			}
		}
	})

	t.Run("Alphabet", func(t *testing.T) {
		s, err := RandomChars(256)
		if err != nil {
			t.Fatalf("RandomChars failed: %v", err)
		}
		for _, r := range s {
			if !strings.ContainsRune(string(allowedRandomChars), r) {
				t.Errorf("unexpected character %q", r)
			}
		}
	})
}

func TestEncoding(t *testing.T) {
	t.Run("Base64RoundTrip", func(t *testing.T) {
		b, _ := RandomBytes(16)
		s := Base64Encode(b)
		if strings.ContainsAny(s, "+/=") {
			t.Errorf("expected URL-safe unpadded encoding, got %q", s)
		}
		decoded, err := Base64Decode(s)
		if err != nil {
			t.Fatalf("Base64Decode failed: %v", err)
		}
		if !bytes.Equal(b, decoded) {
			t.Errorf("expected %v, got %v", b, decoded)
		}
	})

	t.Run("Normalize", func(t *testing.T) {
		// U+FB01 LATIN SMALL LIGATURE FI decomposes to "fi" under NFKD.
		if Normalize("ﬁsh") != "fish" {
			t.Errorf("expected NFKD decomposition")
		}
	})
}
