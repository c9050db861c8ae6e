// Package cellarerr defines cellar's error taxonomy: a small closed set of
// kinds that callers match with errors.Is, never by string comparison.
package cellarerr

import (
	"errors"
	"fmt"
)

// The six kinds from spec.md §7. Every error cellar returns wraps exactly
// one of these via fmt.Errorf("...: %w", ...), so callers can do
// errors.Is(err, cellarerr.ErrNotFound) regardless of which backend or
// component produced it.
var (
	// ErrBackendFailure is an underlying I/O or network failure. The
	// operation has no partial effect at the blob level: puts are
	// idempotent by fingerprint, ref updates are atomic.
	ErrBackendFailure = errors.New("cellar: backend failure")

	// ErrCorruption means observed data violates an invariant: a
	// fingerprint mismatch on round-trip, a fragment missing that a
	// manifest references, or an unrecognized sentinel under a tagged
	// position. Fatal at the call site.
	ErrCorruption = errors.New("cellar: corruption")

	// ErrOCCConflict is surfaced by Ref.Set/Update when a RefStore.Update
	// observed a fingerprint other than the expected one. RefStore.Update
	// itself reports this as (false, nil), not as an error; the ref layer
	// is what turns it into an error the caller can retry on.
	ErrOCCConflict = errors.New("cellar: optimistic concurrency conflict")

	// ErrNotFound means a (name, namespace) cell does not exist.
	// RefStore.Get returning absent is not itself an error; Session.GetRef
	// (and Ref.Pull) on a missing cell surfaces this.
	ErrNotFound = errors.New("cellar: not found")

	// ErrCodecRejection means encode received a value of a type the codec
	// does not recognize, or decode found a sentinel whose payload is
	// malformed.
	ErrCodecRejection = errors.New("cellar: codec rejection")

	// ErrPrecondition means a caller-supplied input violates a structural
	// precondition: a name/namespace containing the reserved separator, or
	// an empty manifest where one is required.
	ErrPrecondition = errors.New("cellar: precondition failed")
)

// Wrap annotates err's kind with additional context, preserving errors.Is
// compatibility with the sentinel.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// BackendFailure wraps err as an ErrBackendFailure, recording which backend
// and operation failed.
func BackendFailure(backend, op string, err error) error {
	return fmt.Errorf("%s.%s: %w: %v", backend, op, ErrBackendFailure, err)
}

// Corruption reports a detected invariant violation for fingerprint f.
func Corruption(fingerprint, format string, args ...any) error {
	return fmt.Errorf("%s (fingerprint %s): %w", fmt.Sprintf(format, args...), fingerprint, ErrCorruption)
}

// NotFound reports a missing reference cell.
func NotFound(name, namespace string) error {
	return fmt.Errorf("ref %q/%q: %w", name, namespace, ErrNotFound)
}

// CodecRejection reports an unsupported value encountered at path during
// encode, or a malformed sentinel payload during decode.
func CodecRejection(path, format string, args ...any) error {
	return fmt.Errorf("%s (at %s): %w", fmt.Sprintf(format, args...), path, ErrCodecRejection)
}

// Precondition reports a violated structural precondition.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPrecondition)
}
