package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Knowledge base construction
	ErrUnknownFact   = errors.New("unknown fact")
	ErrMalformedRule = errors.New("malformed rule")
	ErrDuplicateFact = errors.New("duplicate fact")

	// Search
	ErrNotProved   = errors.New("goal not proved")
	ErrUnreachable = errors.New("goal not reachable")
	ErrSearchLimit = errors.New("search limit exceeded")
)
