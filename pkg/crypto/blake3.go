package crypto

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Blake3Hex returns the lowercase hex BLAKE3-256 digest of data. Used for
// content-addressed storage keys and the consensus action_root/block_hash
// primitives, which the spec names explicitly rather than leaving the hash
// choice to the implementation.
func Blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Blake3 returns the raw 32-byte BLAKE3-256 digest of data.
func Blake3(data []byte) [32]byte {
	return blake3.Sum256(data)
}
