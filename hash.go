package skein

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Hasher fingerprints an encoded token stream.
type Hasher interface {
	// Hash returns the hex-encoded digest of data.
	Hash(data []byte) (string, error)
}

// sha256Hasher implements SHA-256 hashing.
type sha256Hasher struct{}

// SHA256Hasher returns a SHA-256 hasher.
// The result is a hex-encoded 64-character string.
func SHA256Hasher() Hasher {
	return &sha256Hasher{}
}

func (h *sha256Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// sha512Hasher implements SHA-512 hashing.
type sha512Hasher struct{}

// SHA512Hasher returns a SHA-512 hasher.
// The result is a hex-encoded 128-character string.
func SHA512Hasher() Hasher {
	return &sha512Hasher{}
}

func (h *sha512Hasher) Hash(data []byte) (string, error) {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:]), nil
}

// blake2bHasher implements BLAKE2b-256, optionally keyed.
type blake2bHasher struct {
	key []byte
}

// BLAKE2bHasher returns a BLAKE2b-256 hasher. A non-empty key (at most 64
// bytes) makes it a MAC.
func BLAKE2bHasher(key []byte) (Hasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("%w: blake2b key must be at most %d bytes, got %d", ErrInvalidKeySize, blake2b.Size, len(key))
	}
	return &blake2bHasher{key: key}, nil
}

func (h *blake2bHasher) Hash(data []byte) (string, error) {
	if len(h.key) == 0 {
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	}
	d, err := blake2b.New256(h.key)
	if err != nil {
		return "", err
	}
	d.Write(data)
	return hex.EncodeToString(d.Sum(nil)), nil
}

// blake3Hasher implements BLAKE3-256, optionally keyed.
type blake3Hasher struct {
	key []byte
}

// BLAKE3Hasher returns a BLAKE3-256 hasher. A non-empty key must be exactly
// 32 bytes and makes it a MAC.
func BLAKE3Hasher(key []byte) (Hasher, error) {
	if len(key) != 0 && len(key) != 32 {
		return nil, fmt.Errorf("%w: blake3 key must be 32 bytes, got %d", ErrInvalidKeySize, len(key))
	}
	return &blake3Hasher{key: key}, nil
}

func (h *blake3Hasher) Hash(data []byte) (string, error) {
	if len(h.key) == 0 {
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:]), nil
	}
	d, err := blake3.NewKeyed(h.key)
	if err != nil {
		return "", err
	}
	if _, err := d.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// builtinHashers returns the default hasher registry.
func builtinHashers() map[HashAlgo]Hasher {
	b2, _ := BLAKE2bHasher(nil)
	b3, _ := BLAKE3Hasher(nil)
	return map[HashAlgo]Hasher{
		HashSHA256:  SHA256Hasher(),
		HashSHA512:  SHA512Hasher(),
		HashBLAKE2b: b2,
		HashBLAKE3:  b3,
	}
}
