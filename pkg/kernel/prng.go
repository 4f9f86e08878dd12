// Package kernel provides deterministic PRNG primitives for reproducible
// randomness that never touches the host's ambient entropy source.
package kernel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
)

// PRNGAlgorithm defines approved PRNG algorithms.
type PRNGAlgorithm string

const (
	// PRNGAlgorithmChaCha20 - accepted as a config value; there is no
	// ChaCha20 generator, so draws under it use HMAC-SHA256 as well
	PRNGAlgorithmChaCha20 PRNGAlgorithm = "chacha20"
	// PRNGAlgorithmHMACSHA256 - HMAC-SHA256 based PRNG
	PRNGAlgorithmHMACSHA256 PRNGAlgorithm = "hmac_sha256"
)

// SeedDerivation defines how seeds are derived.
type SeedDerivation string

const (
	// SeedDerivationLoopID - seed derived from loop ID
	SeedDerivationLoopID SeedDerivation = "loop_id"
	// SeedDerivationParentSeed - seed derived from parent
	SeedDerivationParentSeed SeedDerivation = "parent_seed"
	// SeedDerivationRequestHash - seed derived from request hash
	SeedDerivationRequestHash SeedDerivation = "request_hash"
)

// PRNGConfig defines the PRNG configuration.
type PRNGConfig struct {
	Algorithm   PRNGAlgorithm  `json:"algorithm"`
	SeedLength  int            `json:"seed_length_bytes"`
	Derivation  SeedDerivation `json:"derivation"`
	RecordToLog bool           `json:"record_to_log"`
}

// DefaultPRNGConfig returns the default PRNG configuration.
func DefaultPRNGConfig() PRNGConfig {
	return PRNGConfig{
		Algorithm:   PRNGAlgorithmHMACSHA256,
		SeedLength:  32,
		Derivation:  SeedDerivationLoopID,
		RecordToLog: true,
	}
}

// DeterministicPRNG provides reproducible random numbers. All randomness is
// derived from a fixed seed plus a monotonic counter so replay reproduces
// identical draws.
type DeterministicPRNG struct {
	mu      sync.Mutex
	config  PRNGConfig
	seed    []byte
	counter uint64
	loopID  string
	onDraw  func(counter uint64, entropy EntropyContext)
}

// EntropyContext records the seed/algorithm/loop identifying a PRNG draw, for
// callers that want to journal it alongside the event that consumed it.
type EntropyContext struct {
	Seed          string
	PRNGAlgorithm string
	LoopID        string
}

// NewDeterministicPRNG creates a new PRNG with the given seed. onDraw, if
// non-nil and config.RecordToLog is set, is invoked after every draw (once
// per Bytes call) so a caller can journal the entropy context alongside
// whatever event consumed it.
func NewDeterministicPRNG(config PRNGConfig, seed []byte, loopID string, onDraw func(uint64, EntropyContext)) (*DeterministicPRNG, error) {
	if len(seed) != config.SeedLength {
		return nil, fmt.Errorf("seed length %d does not match config %d", len(seed), config.SeedLength)
	}

	prng := &DeterministicPRNG{
		config:  config,
		seed:    make([]byte, len(seed)),
		counter: 0,
		loopID:  loopID,
		onDraw:  onDraw,
	}
	copy(prng.seed, seed)

	return prng, nil
}

// Seed returns the current seed (for logging).
func (p *DeterministicPRNG) Seed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return hex.EncodeToString(p.seed)
}

// LoopID returns the loop ID.
func (p *DeterministicPRNG) LoopID() string {
	return p.loopID
}

// Uint64 returns a deterministic uint64.
func (p *DeterministicPRNG) Uint64() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	value := p.generate()

	if p.config.RecordToLog && p.onDraw != nil {
		p.onDraw(p.counter, EntropyContext{
			Seed:          hex.EncodeToString(p.seed),
			PRNGAlgorithm: string(p.config.Algorithm),
			LoopID:        p.loopID,
		})
	}

	return value
}

// generate produces the next random value.
func (p *DeterministicPRNG) generate() uint64 {
	p.counter++

	switch p.config.Algorithm {
	case PRNGAlgorithmHMACSHA256:
		return p.hmacSHA256()
	default:
		return p.hmacSHA256()
	}
}

// hmacSHA256 generates random bytes using HMAC-SHA256.
func (p *DeterministicPRNG) hmacSHA256() uint64 {
	// HMAC(seed, counter)
	counterBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(counterBytes, p.counter)

	h := hmac.New(sha256.New, p.seed)
	h.Write(counterBytes)
	result := h.Sum(nil)

	// Take first 8 bytes as uint64
	return binary.BigEndian.Uint64(result[:8])
}

// Float64 returns a deterministic float64 in [0, 1).
func (p *DeterministicPRNG) Float64() float64 {
	return float64(p.Uint64()>>11) / (1 << 53)
}

// Intn returns a deterministic int in [0, n).
func (p *DeterministicPRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.Uint64() % uint64(n)) //nolint:gosec // Safe modulo
}

// Bytes returns n deterministic random bytes.
func (p *DeterministicPRNG) Bytes(n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]byte, n)
	for i := 0; i < n; i += 8 {
		p.counter++
		val := p.hmacSHA256()

		bytesToWrite := 8
		if n-i < 8 {
			bytesToWrite = n - i
		}

		valBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(valBytes, val)
		copy(result[i:i+bytesToWrite], valBytes[:bytesToWrite])
	}

	if p.config.RecordToLog && p.onDraw != nil {
		p.onDraw(p.counter, EntropyContext{
			Seed:          hex.EncodeToString(p.seed),
			PRNGAlgorithm: string(p.config.Algorithm),
			LoopID:        p.loopID,
		})
	}

	return result
}

// DeriveSeed derives a child seed from parent seed and derivation input.
func DeriveSeed(parentSeed []byte, derivationInput string) []byte {
	h := hmac.New(sha256.New, parentSeed)
	h.Write([]byte(derivationInput))
	return h.Sum(nil)
}

// SeedFromLoopID derives a seed from a root seed and loop ID.
func SeedFromLoopID(rootSeed []byte, loopID string) []byte {
	return DeriveSeed(rootSeed, "loop:"+loopID)
}
