package engine

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnknownInstrument    = errors.New("instrument not in universe")
	ErrInvalidBar           = errors.New("invalid price bar")
	ErrInvalidFill          = errors.New("invalid fill")
)
