package crypto

import (
	"encoding/hex"
	"testing"
)

func TestKeyRing_ActiveKeyIsLexicographicallyLast(t *testing.T) {
	kr := NewKeyRing()

	k1, _ := NewEd25519Signer("key1")
	k2, _ := NewEd25519Signer("key2")
	k3, _ := NewEd25519Signer("key3")

	kr.AddKey(k1)
	kr.AddKey(k2)
	kr.AddKey(k3)

	active, err := kr.ActivePublicKey()
	if err != nil {
		t.Fatalf("ActivePublicKey failed: %v", err)
	}
	if active != k3.PublicKey() {
		t.Errorf("expected active key key3, got public key %s", active)
	}

	payload := []byte(`{"block_hash":"abc"}`)
	sigHex, err := kr.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	sigBytes, _ := hex.DecodeString(sigHex)
	if !kr.Verify(payload, sigBytes) {
		t.Error("keyring failed to verify its own signature")
	}
}

func TestKeyRing_VerifyKey(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	kr.AddKey(k1)

	msg := []byte("hello world")
	sigHex, err := k1.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	sigBytes, _ := hex.DecodeString(sigHex)

	valid, err := kr.VerifyKey("key1", msg, sigBytes)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if !valid {
		t.Error("VerifyKey returned false")
	}

	if _, err := kr.VerifyKey("unknown", msg, sigBytes); err == nil {
		t.Error("VerifyKey should fail for unknown key")
	}
}

func TestKeyRing_RevokeKey(t *testing.T) {
	kr := NewKeyRing()
	k1, _ := NewEd25519Signer("key1")
	k2, _ := NewEd25519Signer("key2")
	kr.AddKey(k1)
	kr.AddKey(k2)

	kr.RevokeKey("key2")

	active, err := kr.ActivePublicKey()
	if err != nil {
		t.Fatalf("ActivePublicKey failed: %v", err)
	}
	if active != k1.PublicKey() {
		t.Error("expected key1 to become active after key2 revoked")
	}
}
