// Package faults defines the error taxonomy of the review ledger. Every
// deterministic failure the core can produce belongs to exactly one code;
// the API layer maps codes to transport status, and callers use the codes
// to decide which failures are recoverable.
//
// Conflict errors (duplicate id, already verified, already published) are
// expected under concurrent use and are designed to be treated as
// success-equivalent by callers. The core never downgrades or swallows a
// validation failure.
package faults

import (
	"errors"
	"fmt"
)

type Code string

const (
	// NotFound: a referenced paper, review or handle does not exist.
	NotFound Code = "NOT_FOUND"
	// Conflict: duplicate id, already-published, already-verified. All
	// recoverable; often expected under concurrency.
	Conflict Code = "CONFLICT"
	// InvalidProof: cryptographic binding of a claimed clear value to a
	// ciphertext did not check out. The caller must re-request the proof.
	InvalidProof Code = "INVALID_PROOF"
	// InvalidCiphertext: the submitted ciphertext failed the substrate
	// validity check.
	InvalidCiphertext Code = "INVALID_CIPHERTEXT"
	// PreconditionFailed: an ordering constraint was violated, e.g.
	// publish before aggregate or aggregate before any review exists.
	PreconditionFailed Code = "PRECONDITION_FAILED"
	// Internal: storage or substrate failure outside the taxonomy.
	Internal Code = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human
// message. Sentinels built from it compare with errors.Is against wrapped
// instances of themselves.
type CodedError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a coded sentinel error.
func New(code Code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Classify extracts the taxonomy code from err. Errors outside the
// taxonomy classify as Internal; nil classifies as the empty code.
func Classify(err error) Code {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return Internal
}

// Recoverable reports whether callers may treat err as success-equivalent,
// i.e. whether it is a Conflict in the sense of the taxonomy.
func Recoverable(err error) bool {
	return Classify(err) == Conflict
}
