package crypto

import (
	"encoding/hex"
	"testing"
)

func TestSigner_Integrity(t *testing.T) {
	signer, err := NewEd25519Signer("key-1")
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	payload := []byte(`{"intent_id":"dec-123","status":"Ok"}`)

	sigHex, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if sigHex == "" {
		t.Error("Signature empty")
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !signer.Verify(payload, sigBytes) {
		t.Error("valid signature rejected")
	}

	tampered := []byte(`{"intent_id":"dec-123","status":"Failed"}`)
	if signer.Verify(tampered, sigBytes) {
		t.Error("tampered payload accepted")
	}
}
