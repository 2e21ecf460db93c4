// Package digstoreerr defines the typed error taxonomy shared by every
// digstore component. Callers switch on Kind rather than parsing messages.
package digstoreerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy from the storage engine's external
// interface contract. Kinds are stable identifiers; message text is not.
type Kind string

const (
	StoreNotFound          Kind = "StoreNotFound"
	StoreAlreadyExists     Kind = "StoreAlreadyExists"
	StoreCorrupted         Kind = "StoreCorrupted"
	LayerNotFound          Kind = "LayerNotFound"
	InvalidLayerFormat     Kind = "InvalidLayerFormat"
	LayerVerificationFailed Kind = "LayerVerificationFailed"
	FileNotFound           Kind = "FileNotFound"
	InvalidFilePath        Kind = "InvalidFilePath"
	ChunkNotFound          Kind = "ChunkNotFound"
	ChunkVerificationFailed Kind = "ChunkVerificationFailed"
	InvalidUrn             Kind = "InvalidUrn"
	UrnParsingFailed       Kind = "UrnParsingFailed"
	InvalidByteRange       Kind = "InvalidByteRange"
	ProofGenerationFailed  Kind = "ProofGenerationFailed"
	ProofVerificationFailed Kind = "ProofVerificationFailed"
	InvalidProofFormat     Kind = "InvalidProofFormat"
	CompressionFailed      Kind = "CompressionFailed"
	DecompressionFailed    Kind = "DecompressionFailed"
	EncryptionFailed       Kind = "EncryptionFailed"
	DecryptionFailed       Kind = "DecryptionFailed"
	ChecksumMismatch       Kind = "ChecksumMismatch"
	UnsupportedVersion     Kind = "UnsupportedVersion"
	ConfigurationError     Kind = "ConfigurationError"
	IoError                Kind = "IoError"
	Locked                 Kind = "Locked"
	// InvalidFormat covers malformed hash hex and similar low-level parse
	// failures that don't belong to any higher-level boundary kind above.
	InvalidFormat Kind = "InvalidFormat"
	// EmptyCommit is returned when a commit has nothing staged: an empty
	// file set's merkle root is the zero hash, which must never be used as
	// a layer identity since it would alias with Layer 0's own key.
	EmptyCommit Kind = "EmptyCommit"
)

// Error is the concrete type returned at every digstore boundary. It carries
// enough context to diagnose without a debugger, and never carries secrets:
// URNs are redacted to their store-id prefix by RedactURN before being attached.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Hash    string
	Offset  int64
	cause   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		s += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Hash != "" {
		s += fmt.Sprintf(" (hash=%s)", e.Hash)
	}
	if e.cause != nil {
		s += fmt.Sprintf(": %v", e.cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a bare typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause (typically from pkg/errors, preserving
// its stack) to a typed error without losing the taxonomy kind.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// WithPath returns a copy annotated with the offending path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithHash returns a copy annotated with the offending hash.
func (e *Error) WithHash(h string) *Error {
	c := *e
	c.Hash = h
	return &c
}

// WithOffset returns a copy annotated with a byte offset.
func (e *Error) WithOffset(off int64) *Error {
	c := *e
	c.Offset = off
	return &c
}

// Is allows errors.Is(err, digstoreerr.New(Kind, "")) to match by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err, ok=false if err is not a tagged Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// RedactURN trims a URN down to its store-id prefix so error messages never
// leak the full retrieval key, per the zero-knowledge property's error path.
func RedactURN(urn string) string {
	const prefix = "urn:dig:chia:"
	if len(urn) <= len(prefix)+16 {
		return prefix + "..."
	}
	return urn[:len(prefix)+16] + "..."
}
