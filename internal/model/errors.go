package model

import "errors"

// Failure classes surfaced by the metrics engine. Callers match with errors.Is.
var (
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
	ErrMalformedUpstreamData = errors.New("malformed upstream data")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrInvalidRange          = errors.New("invalid date range")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrInvalidProfile        = errors.New("invalid profile identifier")
)
