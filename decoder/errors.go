package decoder

import "errors"

// ErrDataLengthMismatch is returned when a field list consumes fewer bytes
// than the input payload contains (a field list that needs more bytes
// fails with ErrTruncated instead). The decoder treats exact consumption
// as an invariant, not a best-effort parse.
var ErrDataLengthMismatch = errors.New("decoder: data length mismatch")

// ErrTruncated is returned whenever fewer bytes remain than a field's
// declared type requires.
var ErrTruncated = errors.New("decoder: truncated input")

// ErrUnknownType is returned for a primitive name the decoder does not
// recognize and that the owning program has no defined struct for either.
var ErrUnknownType = errors.New("decoder: unknown type")

// ErrRecursionTooDeep guards against a defined-type cycle (A defined as
// containing B, B containing A) turning decode into an infinite recursion.
var ErrRecursionTooDeep = errors.New("decoder: defined-type recursion too deep")

// ErrInvalidUTF8 is returned when a string field's bytes are not valid
// UTF-8.
var ErrInvalidUTF8 = errors.New("decoder: invalid utf-8")
