package types

import "errors"

// Domain errors for input validation
var (
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)
