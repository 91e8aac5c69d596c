package models

import "errors"

// Pipeline sentinel errors. Callers match them with errors.Is; the API layer
// maps them onto HTTP status codes.
var (
	// ErrInvalidParameter indicates a period or window that is non-positive or
	// exceeds the available data length.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData indicates a series shorter than the longest lookback
	// required by the configured pipeline.
	ErrInsufficientData = errors.New("insufficient data")
)
