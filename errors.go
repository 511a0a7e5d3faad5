package skein

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrInvalidFormat indicates the stream is not a skein stream or is malformed.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnsupportedVersion indicates the stream was written by another format version.
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrUnknownTokenKind indicates a tag or reference sub-kind byte that no kind claims.
	ErrUnknownTokenKind = errors.New("unknown token kind")

	// ErrTruncated indicates the stream ended before the current token did.
	ErrTruncated = errors.New("truncated stream")

	// ErrOversizedPayload indicates a string or byte payload above the configured cap.
	ErrOversizedPayload = errors.New("oversized payload")

	// ErrDepthExceeded indicates nesting deeper than the configured maximum.
	ErrDepthExceeded = errors.New("max depth exceeded")

	// ErrTypeMismatch indicates a token extracted as the wrong kind or type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnresolvedReference indicates a reference index with no registered object.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrNoProviderFound indicates no provider serves a type.
	ErrNoProviderFound = errors.New("no provider found")

	// ErrNoTypeMapping indicates a type or type mapping that no mapper recognises.
	ErrNoTypeMapping = errors.New("no type mapping")

	// ErrDuplicateTypeKind indicates two type mappers claiming the same kind.
	ErrDuplicateTypeKind = errors.New("duplicate type mapping kind")

	// ErrDuplicateTypeID indicates one identifier registered for two types.
	ErrDuplicateTypeID = errors.New("duplicate type identifier")

	// ErrMissingRequiredProperty indicates a required property never arrived.
	ErrMissingRequiredProperty = errors.New("missing required property")

	// ErrDuplicateProperty indicates a non-repeatable property arrived twice.
	ErrDuplicateProperty = errors.New("duplicate property")

	// ErrPropertyCountMismatch indicates item or entry counts that do not line up.
	ErrPropertyCountMismatch = errors.New("property count mismatch")

	// ErrUnmarshal indicates a document codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates a document codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")

	// ErrMissingEncryptor indicates an encrypted envelope with no encryptor configured.
	ErrMissingEncryptor = errors.New("missing encryptor")
)

// FormatError reports a malformed or incompatible stream.
type FormatError struct {
	Err    error  // Underlying sentinel error (ErrInvalidFormat, ErrTruncated, etc.)
	Offset int64  // Byte offset where the problem was detected, -1 if unknown
	Detail string // Human readable detail
}

func (e *FormatError) Error() string {
	msg := e.Err.Error()
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// TypeMismatchError reports a value extracted as the wrong kind or type.
type TypeMismatchError struct {
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", ErrTypeMismatch.Error(), e.Expected, e.Actual)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// ReferenceError reports a back-reference that cannot be resolved.
type ReferenceError struct {
	Index int
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: index %d", ErrUnresolvedReference.Error(), e.Index)
}

func (e *ReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

// TypeError reports a type that has no provider or no type mapping.
type TypeError struct {
	Err  error  // Underlying sentinel error (ErrNoProviderFound, ErrNoTypeMapping)
	Type string // Go type or type mapping that failed
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s for %s", e.Err.Error(), e.Type)
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// PropertyError reports a violated property contract while rebuilding an object.
type PropertyError struct {
	Err      error  // Underlying sentinel error (ErrMissingRequiredProperty, etc.)
	Type     string // Type being rebuilt
	Property string // Offending property name
	Detail   string
}

func (e *PropertyError) Error() string {
	msg := fmt.Sprintf("%s %q on %s", e.Err.Error(), e.Property, e.Type)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *PropertyError) Unwrap() error {
	return e.Err
}

// CodecError represents a document marshal/unmarshal error.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrUnmarshal)
	Cause error // Original error from the codec
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func newFormatError(sentinel error, offset int64, detail string) error {
	return &FormatError{Err: sentinel, Offset: offset, Detail: detail}
}

func newTypeMismatchError(expected, actual string) error {
	return &TypeMismatchError{Expected: expected, Actual: actual}
}

func newReferenceError(index int) error {
	return &ReferenceError{Index: index}
}

func newTypeError(sentinel error, typ string) error {
	return &TypeError{Err: sentinel, Type: typ}
}

func newPropertyError(sentinel error, typ, property, detail string) error {
	return &PropertyError{Err: sentinel, Type: typ, Property: property, Detail: detail}
}

func newCodecError(sentinel error, cause error) error {
	return &CodecError{Err: sentinel, Cause: cause}
}
