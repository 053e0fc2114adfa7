package merkledb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/merkledb/crypto"
)

var (
	ErrClosed             = errors.New("merkledb: closed")
	ErrForkClosed         = errors.New("merkledb: fork already finalized or discarded")
	ErrPatchMerged        = errors.New("merkledb: patch already merged")
	ErrMergeConflict      = errors.New("merkledb: another merge is in progress")
	ErrIndexOutOfRange    = errors.New("merkledb: index out of range")
	ErrMigrationConflict  = errors.New("merkledb: overlapping migration is already registered")
	ErrMigrationAborted   = errors.New("merkledb: migration aborted")
	ErrMigrationCompleted = errors.New("merkledb: migration already completed")
	ErrReadOnly           = errors.New("merkledb: handle is read-only")
)

// DecodeError reports stored bytes that do not parse as the expected type.
type DecodeError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func decodeErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DecodeError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// IndexError wraps a failure that happened inside a particular index.
type IndexError struct {
	Addr Address
	Key  []byte
	Msg  string
	Err  error
}

func indexErrf(addr Address, key []byte, err error, format string, args ...any) error {
	return &IndexError{addr, key, fmt.Sprintf(format, args...), err}
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Addr.String())
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(hexstr(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// TypeMismatchError is returned when an index is opened with a type that
// differs from its persisted metadata.
type TypeMismatchError struct {
	Addr     Address
	Expected IndexType
	Actual   IndexType
	Msg      string
}

func (e *TypeMismatchError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%v: %s", e.Addr, e.Msg)
	}
	return fmt.Sprintf("%v: index type mismatch: opened as %v, stored as %v", e.Addr, e.Expected, e.Actual)
}

// AccessDeniedError reports a capability check failure. It is always returned
// at handle construction; nothing is read or written.
type AccessDeniedError struct {
	Name string
	Mode AccessMode
	Msg  string
}

func (e *AccessDeniedError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("access denied to %q (%v): %s", e.Name, e.Mode, e.Msg)
	}
	return fmt.Sprintf("access denied to %q (%v)", e.Name, e.Mode)
}

// ConcurrentMutationError is returned when a second mutable handle to the
// same index is requested while the first one is still live in the Fork.
type ConcurrentMutationError struct {
	Addr Address
}

func (e *ConcurrentMutationError) Error() string {
	return fmt.Sprintf("%v: index already has a live mutable handle in this fork", e.Addr)
}

// MigrationVerificationError means a migration's completion check failed;
// the migration is Failed and the original namespace is untouched.
type MigrationVerificationError struct {
	Migration string
	Namespace string
	OldHash   crypto.Hash
	NewHash   crypto.Hash
	Err       error
}

func (e *MigrationVerificationError) Unwrap() error {
	return e.Err
}

func (e *MigrationVerificationError) Error() string {
	return fmt.Sprintf("migration %s of %s failed verification (old %v, new %v): %v", e.Migration, e.Namespace, e.OldHash, e.NewHash, e.Err)
}

// ProofError reports a malformed or non-verifying Merkle proof.
type ProofError struct {
	Msg string
}

func proofErrf(format string, args ...any) error {
	return &ProofError{fmt.Sprintf(format, args...)}
}

func (e *ProofError) Error() string {
	return "invalid proof: " + e.Msg
}
