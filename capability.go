package skein

// CompressionAlgo selects how a Serializer compresses the token stream.
type CompressionAlgo string

const (
	// CompressNone stores the stream as written.
	CompressNone CompressionAlgo = "none"

	// CompressZstd uses zstd at the default level (good ratio, moderate CPU).
	CompressZstd CompressionAlgo = "zstd"

	// CompressLZ4 uses block-mode LZ4 (lower ratio, very fast).
	CompressLZ4 CompressionAlgo = "lz4"
)

// EncryptAlgo names the encryption applied to a sealed stream.
type EncryptAlgo string

const (
	// EncryptAES uses AES-GCM symmetric encryption.
	EncryptAES EncryptAlgo = "aes"

	// EncryptEnvelope uses envelope encryption with per-message data keys.
	EncryptEnvelope EncryptAlgo = "envelope"
)

// HashAlgo represents a supported fingerprint algorithm.
type HashAlgo string

const (
	// HashSHA256 uses SHA-256.
	HashSHA256 HashAlgo = "sha256"

	// HashSHA512 uses SHA-512.
	HashSHA512 HashAlgo = "sha512"

	// HashBLAKE2b uses BLAKE2b-256.
	HashBLAKE2b HashAlgo = "blake2b"

	// HashBLAKE3 uses BLAKE3-256.
	HashBLAKE3 HashAlgo = "blake3"
)

// Wire identifiers stored in the envelope algorithm byte: compression in
// the low nibble, encryption in the high nibble.
var (
	compressionIDs = map[CompressionAlgo]byte{
		CompressNone: 0,
		CompressZstd: 1,
		CompressLZ4:  2,
	}
	encryptIDs = map[EncryptAlgo]byte{
		EncryptAES:      1,
		EncryptEnvelope: 2,
	}
)

// validHashAlgos contains all valid fingerprint algorithms.
var validHashAlgos = map[HashAlgo]bool{
	HashSHA256:  true,
	HashSHA512:  true,
	HashBLAKE2b: true,
	HashBLAKE3:  true,
}

// IsValidCompression returns true if the algorithm is a known compression algorithm.
func IsValidCompression(algo CompressionAlgo) bool {
	_, ok := compressionIDs[algo]
	return ok
}

// IsValidEncryptAlgo returns true if the algorithm is a known encryption algorithm.
func IsValidEncryptAlgo(algo EncryptAlgo) bool {
	_, ok := encryptIDs[algo]
	return ok
}

// IsValidHashAlgo returns true if the algorithm is a known hash algorithm.
func IsValidHashAlgo(algo HashAlgo) bool {
	return validHashAlgos[algo]
}

func compressionByID(id byte) (CompressionAlgo, bool) {
	for algo, v := range compressionIDs {
		if v == id {
			return algo, true
		}
	}
	return "", false
}

func encryptByID(id byte) (EncryptAlgo, bool) {
	for algo, v := range encryptIDs {
		if v == id {
			return algo, true
		}
	}
	return "", false
}
