package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Ed25519Verifier implements Verifier using Ed25519.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier creates a new verifier.
func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(pubKeyBytes))
	}
	return &Ed25519Verifier{PublicKey: ed25519.PublicKey(pubKeyBytes)}, nil
}

func (v *Ed25519Verifier) Verify(message []byte, signature []byte) bool {
	return ed25519.Verify(v.PublicKey, message, signature)
}

// VerifyHex verifies a hex-encoded signature against a message.
func (v *Ed25519Verifier) VerifyHex(message []byte, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	return v.Verify(message, sig), nil
}
