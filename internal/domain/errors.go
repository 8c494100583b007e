package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrUnknownJob            = errors.New("unknown job")
)
