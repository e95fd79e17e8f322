package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Bounds accepted when decoding a stored hash
const (
	maxMemoryKiB  = 1 << 20
	maxIterations = 32
	minSaltLength = 8
	minKeyLength  = 16
)

// Hasher derives self-describing Argon2id password hashes
type Hasher struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewHasher returns a hasher with the given cost parameters
func NewHasher(memory, iterations uint32, parallelism uint8) *Hasher {
	return &Hasher{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// DefaultHasher uses 64 MiB, 3 passes, 2 lanes
func DefaultHasher() *Hasher {
	return NewHasher(64*1024, 3, 2)
}

// Hash derives an encoded hash with a fresh random salt:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
func (h *Hasher) Hash(plaintext string) (string, error) {
	params := argonParams{
		memory:      h.Memory,
		iterations:  h.Iterations,
		parallelism: h.Parallelism,
	}
	// Argon2 silently rounds memory down to a multiple of 4*p.
	lanes := 4 * uint32(h.Parallelism)
	if lanes > 0 {
		params.memory = params.memory / lanes * lanes
	}
	if err := params.check(); err != nil {
		return "", err
	}

	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, h.KeyLength)
	return encode(params, salt, key), nil
}

// Verify reports whether plaintext matches the stored hash
func (h *Hasher) Verify(plaintext, stored string) bool {
	return VerifyPassword(plaintext, stored)
}

// VerifyPassword rederives the key from the parameters and salt embedded in
// stored and compares in constant time. Any malformed stored value is a mismatch.
func VerifyPassword(plaintext, stored string) bool {
	params, salt, key, ok := decode(stored)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(plaintext), salt, params.iterations, params.memory, params.parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1
}

type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

func (p argonParams) check() error {
	switch {
	case p.parallelism < 1:
		return fmt.Errorf("argon2 parallelism must be at least 1")
	case p.iterations < 1 || p.iterations > maxIterations:
		return fmt.Errorf("argon2 iterations out of range: %d", p.iterations)
	case p.memory < 8*uint32(p.parallelism) || p.memory > maxMemoryKiB:
		return fmt.Errorf("argon2 memory out of range: %d", p.memory)
	case p.memory%(4*uint32(p.parallelism)) != 0:
		return fmt.Errorf("argon2 memory must be a multiple of %d", 4*uint32(p.parallelism))
	}
	return nil
}

func encode(p argonParams, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory,
		p.iterations,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

// decode parses an encoded hash. Only the exact canonical encoding is accepted,
// so every distinct stored string maps to distinct derivation inputs.
func decode(stored string) (argonParams, []byte, []byte, bool) {
	var p argonParams

	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, false
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, false
	}

	fields := strings.Split(parts[3], ",")
	if len(fields) != 3 {
		return p, nil, nil, false
	}
	memory, ok := parseParam(fields[0], "m=")
	if !ok {
		return p, nil, nil, false
	}
	iterations, ok := parseParam(fields[1], "t=")
	if !ok {
		return p, nil, nil, false
	}
	parallelism, ok := parseParam(fields[2], "p=")
	if !ok || parallelism > 255 {
		return p, nil, nil, false
	}
	p = argonParams{memory: memory, iterations: iterations, parallelism: uint8(parallelism)}
	if p.check() != nil {
		return p, nil, nil, false
	}

	strict := base64.RawStdEncoding.Strict()
	salt, err := strict.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return p, nil, nil, false
	}
	key, err := strict.DecodeString(parts[5])
	if err != nil || len(key) < minKeyLength {
		return p, nil, nil, false
	}

	if encode(p, salt, key) != stored {
		return p, nil, nil, false
	}
	return p, salt, key, true
}

func parseParam(field, prefix string) (uint32, bool) {
	if !strings.HasPrefix(field, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(field, prefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
