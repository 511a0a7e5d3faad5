package skein

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// DefaultMaxStreamSize caps a decompressed stream.
const DefaultMaxStreamSize = 256 << 20

// Envelope flags.
const (
	flagCompressed = 1 << 0
	flagEncrypted  = 1 << 1
	knownFlags     = flagCompressed | flagEncrypted
)

// Serializer marshals values of type T to sealed byte streams and back.
// Every call runs in a fresh SerializationContext over a shared Registry.
//
// Serializers are safe for concurrent use. Configuration methods
// (SetEncryptor, SetCompression, SetHasher, SetMaxSize) may be called at any
// time, for example to rotate keys.
type Serializer[T any] struct {
	registry *Registry
	opts     []ContextOption

	// Mutable configuration protected by mu
	mu          sync.RWMutex
	encryptors  map[EncryptAlgo]Encryptor
	encryptAlgo EncryptAlgo
	hashers     map[HashAlgo]Hasher
	compression CompressionAlgo
	maxSize     int

	typeName string
}

// NewSerializer creates a Serializer for T over reg. A nil reg gets a new
// default Registry. opts apply to every SerializationContext it creates.
//
// The serializer starts with the builtin hashers, no compression and no
// encryption.
func NewSerializer[T any](reg *Registry, opts ...ContextOption) *Serializer[T] {
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Serializer[T]{
		registry:    reg,
		opts:        opts,
		encryptors:  make(map[EncryptAlgo]Encryptor),
		hashers:     builtinHashers(),
		compression: CompressNone,
		maxSize:     DefaultMaxStreamSize,
		typeName:    reflect.TypeFor[T]().String(),
	}
	emitSerializerCreated(context.Background(), s.typeName, string(s.compression))
	return s
}

// Registry returns the registry the serializer resolves through.
func (s *Serializer[T]) Registry() *Registry { return s.registry }

// SetEncryptor registers an encryptor and makes it the one used to seal new
// streams. Streams sealed with any registered algorithm can still be opened.
// Returns the serializer for chaining. Safe for concurrent use.
func (s *Serializer[T]) SetEncryptor(algo EncryptAlgo, enc Encryptor) *Serializer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptors[algo] = enc
	s.encryptAlgo = algo
	return s
}

// SetCompression selects the compression for new streams.
// Returns the serializer for chaining. Safe for concurrent use.
func (s *Serializer[T]) SetCompression(algo CompressionAlgo) *Serializer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compression = algo
	return s
}

// SetHasher registers a hasher for the given algorithm.
// Returns the serializer for chaining. Safe for concurrent use.
func (s *Serializer[T]) SetHasher(algo HashAlgo, h Hasher) *Serializer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashers[algo] = h
	return s
}

// SetMaxSize caps the size of a decompressed stream.
// Returns the serializer for chaining. Safe for concurrent use.
func (s *Serializer[T]) SetMaxSize(n int) *Serializer[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxSize = n
	}
	return s
}

// Validate checks that the selected algorithms are known and configured.
func (s *Serializer[T]) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateLocked()
}

func (s *Serializer[T]) validateLocked() error {
	if !IsValidCompression(s.compression) {
		return fmt.Errorf("%w: %q", ErrUnknownCompression, s.compression)
	}
	if s.encryptAlgo == "" {
		return nil
	}
	if !IsValidEncryptAlgo(s.encryptAlgo) {
		return fmt.Errorf("unknown encryption algorithm %q", s.encryptAlgo)
	}
	if s.encryptors[s.encryptAlgo] == nil {
		return fmt.Errorf("%w: %q", ErrMissingEncryptor, s.encryptAlgo)
	}
	return nil
}

func (s *Serializer[T]) newContext(ctx context.Context) *SerializationContext {
	opts := append([]ContextOption{WithContext(ctx)}, s.opts...)
	return NewSerializationContext(s.registry, opts...)
}

// Marshal encodes value as a sealed stream.
func (s *Serializer[T]) Marshal(ctx context.Context, value T) ([]byte, error) {
	start := time.Now()
	s.mu.RLock()
	compression := s.compression
	s.mu.RUnlock()

	var retErr error
	var retData []byte
	defer func() {
		emitMarshalComplete(ctx, s.typeName, string(compression), len(retData), time.Since(start), retErr)
	}()

	stream, err := Marshal(value, s.newContext(ctx))
	if err != nil {
		retErr = fmt.Errorf("marshal: %w", err)
		return nil, retErr
	}
	retData, retErr = s.seal(stream)
	return retData, retErr
}

// Unmarshal decodes a stream produced by Marshal.
func (s *Serializer[T]) Unmarshal(ctx context.Context, data []byte) (T, error) {
	start := time.Now()
	var retErr error
	defer func() {
		emitUnmarshalComplete(ctx, s.typeName, len(data), time.Since(start), retErr)
	}()

	var zero T
	stream, err := s.open(data)
	if err != nil {
		retErr = err
		return zero, retErr
	}
	out, err := Unmarshal[T](stream, s.newContext(ctx))
	if err != nil {
		retErr = fmt.Errorf("unmarshal: %w", err)
		return zero, retErr
	}
	return out, nil
}

// Clone returns a deep copy of value. Types implementing Cloner[T] copy
// themselves; everything else goes through the token form.
func (s *Serializer[T]) Clone(ctx context.Context, value T) (T, error) {
	if c, ok := any(value).(Cloner[T]); ok {
		return c.Clone(), nil
	}
	return DeepClone(value, s.newContext(ctx))
}

// Fingerprint hashes the canonical stream of value, before compression and
// encryption. Equal graphs with ordered map keys have equal fingerprints.
func (s *Serializer[T]) Fingerprint(ctx context.Context, value T, algo HashAlgo) (string, error) {
	start := time.Now()
	var retErr error
	defer func() {
		emitFingerprintComplete(ctx, s.typeName, time.Since(start), retErr)
	}()

	s.mu.RLock()
	h, ok := s.hashers[algo]
	s.mu.RUnlock()
	if !ok {
		retErr = fmt.Errorf("%w: %q", ErrUnknownHash, algo)
		return "", retErr
	}
	stream, err := Marshal(value, s.newContext(ctx))
	if err != nil {
		retErr = fmt.Errorf("marshal: %w", err)
		return "", retErr
	}
	sum, err := h.Hash(stream)
	if err != nil {
		retErr = fmt.Errorf("hash: %w", err)
		return "", retErr
	}
	return sum, nil
}

// seal wraps stream in the envelope: [flags][algo][body]. Compression that
// does not shrink the stream is skipped.
func (s *Serializer[T]) seal(stream []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.validateLocked(); err != nil {
		return nil, err
	}

	var flags, algo byte
	body := stream
	if s.compression != CompressNone {
		compressed, err := compress(s.compression, stream)
		switch {
		case errors.Is(err, errIncompressible):
		case err != nil:
			return nil, err
		default:
			body = compressed
			flags |= flagCompressed
			algo |= compressionIDs[s.compression]
		}
	}
	if s.encryptAlgo != "" {
		flags |= flagEncrypted
		algo |= encryptIDs[s.encryptAlgo] << 4
		sealed, err := s.encryptors[s.encryptAlgo].Encrypt(body, []byte{flags, algo})
		if err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
		body = sealed
	}
	out := make([]byte, 0, 2+len(body))
	out = append(out, flags, algo)
	return append(out, body...), nil
}

// open reverses seal.
func (s *Serializer[T]) open(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, newFormatError(ErrTruncated, int64(len(data)), "envelope header")
	}
	flags, algo := data[0], data[1]
	if flags&^knownFlags != 0 {
		return nil, newFormatError(ErrInvalidFormat, 0, fmt.Sprintf("envelope flags %#x", flags))
	}
	body := data[2:]

	s.mu.RLock()
	defer s.mu.RUnlock()

	if flags&flagEncrypted != 0 {
		ea, ok := encryptByID(algo >> 4)
		if !ok {
			return nil, newFormatError(ErrInvalidFormat, 1, fmt.Sprintf("encryption id %d", algo>>4))
		}
		enc := s.encryptors[ea]
		if enc == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingEncryptor, ea)
		}
		plain, err := enc.Decrypt(body, data[:2])
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
		body = plain
	}
	if flags&flagCompressed != 0 {
		ca, ok := compressionByID(algo & 0x0F)
		if !ok || ca == CompressNone {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownCompression, algo&0x0F)
		}
		plain, err := decompress(ca, body, s.maxSize)
		if err != nil {
			return nil, err
		}
		body = plain
	}
	return body, nil
}
