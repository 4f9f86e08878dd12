package crypto

import (
	"fmt"
	"sort"
	"sync"
)

// KeyRing implements Verifier, plus the Sign and PublicKey methods of Signer
// (it has no PublicKeyBytes, so it does not satisfy Signer), over multiple
// keys, giving rotation
// support: the active key is the lexicographically last key ID, so rotation
// is a matter of adding a new key with a greater ID.
type KeyRing struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

// NewKeyRing creates a new empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{
		signers: make(map[string]Signer),
	}
}

// AddKey adds a signer to the keyring.
func (k *KeyRing) AddKey(s Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ed, ok := s.(*Ed25519Signer); ok {
		k.signers[ed.KeyID] = s
	}
}

// RevokeKey removes a key from the keyring by ID.
func (k *KeyRing) RevokeKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.signers, keyID)
}

func (k *KeyRing) activeKeyLocked() (string, error) {
	var keys []string
	for id := range k.signers {
		keys = append(keys, id)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no keyring keys available")
	}
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

// Sign signs data with the active (lexicographically last) key.
func (k *KeyRing) Sign(data []byte) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	selected, err := k.activeKeyLocked()
	if err != nil {
		return "", err
	}
	return k.signers[selected].Sign(data)
}

// SignWithKey signs data with a specific key ID, for wire formats that stamp
// a key ID alongside the signature (consensus attestations, commit records).
func (k *KeyRing) SignWithKey(keyID string, data []byte) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	signer, exists := k.signers[keyID]
	if !exists {
		return "", fmt.Errorf("unknown or revoked key: %s", keyID)
	}
	return signer.Sign(data)
}

// VerifyKey verifies a signature against a specific key ID.
func (k *KeyRing) VerifyKey(keyID string, message []byte, signature []byte) (bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	signer, exists := k.signers[keyID]
	if !exists {
		return false, fmt.Errorf("unknown key: %s", keyID)
	}

	if v, ok := signer.(*Ed25519Signer); ok {
		return v.Verify(message, signature), nil
	}
	return false, fmt.Errorf("signer %s does not support raw verification", keyID)
}

// Verify tries every key in the ring and reports whether any verifies the
// signature; used where the message doesn't carry a key ID hint.
func (k *KeyRing) Verify(message []byte, signature []byte) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, s := range k.signers {
		if v, ok := s.(Verifier); ok && v.Verify(message, signature) {
			return true
		}
	}
	return false
}

func (k *KeyRing) PublicKey() string {
	return "keyring-aggregate"
}

// ActivePublicKey returns the hex public key of the active signing key.
func (k *KeyRing) ActivePublicKey() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	selected, err := k.activeKeyLocked()
	if err != nil {
		return "", err
	}
	return k.signers[selected].PublicKey(), nil
}
