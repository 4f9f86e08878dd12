package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalMarshal marshals v into canonical JSON format (RFC 8785).
// Key features:
// 1. Map keys sorted lexicographically (Go default)
// 2. No HTML escaping (SetEscapeHTML(false))
// 3. Compact representation (no whitespace)
// 4. Trailing newline is NOT added
func CanonicalMarshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "") // Compact

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}

	// json.Encoder.Encode adds a trailing newline, which we must remove for strict JCS compliance
	// if we want pure content addressing of the value data.
	ret := buf.Bytes()
	if len(ret) > 0 && ret[len(ret)-1] == '\n' {
		ret = ret[:len(ret)-1]
	}

	return ret, nil
}

// Signature wire-format separator and key-type prefix, e.g. "ed25519:node-7".
const (
	SigSeparator     = ":"
	SigPrefixEd25519 = "ed25519"
)

// SignatureTag composes the "ed25519:<key-id>" tag stamped alongside a
// signature so a verifier knows which key in a KeyRing to check.
func SignatureTag(keyID string) string {
	return SigPrefixEd25519 + SigSeparator + keyID
}

// SplitSignatureTag parses a "ed25519:<key-id>" tag back into its key ID.
func SplitSignatureTag(tag string) (keyID string, err error) {
	prefix := SigPrefixEd25519 + SigSeparator
	if len(tag) <= len(prefix) || tag[:len(prefix)] != prefix {
		return "", fmt.Errorf("invalid signature tag: %s", tag)
	}
	return tag[len(prefix):], nil
}
