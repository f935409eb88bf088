package qsp

import "errors"

// Error categories. Packages wrap one of these with fmt.Errorf("%w: ...") so
// callers can classify failures with errors.Is.
var (
	// ErrValidation reports malformed inputs: bad parameters, wrong shapes,
	// too few shares, payloads exceeding capacity.
	ErrValidation = errors.New("validation error")

	// ErrRejected reports a rejection-sampling failure in the signing protocol.
	ErrRejected = errors.New("signing attempt rejected")

	// ErrIntegrity reports a fingerprint or signature mismatch.
	ErrIntegrity = errors.New("integrity error")

	// ErrIO reports unreadable images, keys or manifests.
	ErrIO = errors.New("i/o error")
)
