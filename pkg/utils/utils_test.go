package utils

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("secret"), []byte(testKey))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "secret") {
		t.Fatal("ciphertext contains plaintext")
	}

	plain, err := Decrypt(sealed, []byte(testKey))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plain) != "secret" {
		t.Errorf("Decrypt = %q", plain)
	}

	if _, err := Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210")); err == nil {
		t.Error("Decrypt with the wrong key succeeded")
	}
	if _, err := Decrypt("AAAA", []byte(testKey)); err != ErrCiphertextTooShort {
		t.Errorf("err = %v, want ErrCiphertextTooShort", err)
	}
}

func TestSealOpenJSON(t *testing.T) {
	type bundle struct {
		Token string `json:"token"`
	}
	sealed, err := SealJSON(bundle{Token: "abc"}, []byte(testKey))
	if err != nil {
		t.Fatal(err)
	}
	var got bundle
	if err := OpenJSON(sealed, []byte(testKey), &got); err != nil {
		t.Fatal(err)
	}
	if got.Token != "abc" {
		t.Errorf("token = %q", got.Token)
	}
}

func TestToken(t *testing.T) {
	token, err := GenerateToken(testKey, "ops", time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(testKey, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Operator != "ops" || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := ValidateToken("another-secret-another-secret-32", token); err == nil {
		t.Error("token validated with the wrong secret")
	}

	expired, _ := GenerateToken(testKey, "ops", time.Now().Add(-2*time.Hour), time.Hour)
	if _, err := ValidateToken(testKey, expired); err == nil {
		t.Error("expired token validated")
	}
}
