package domain

import "errors"

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrNoCandidates      = errors.New("no candidates found")
	ErrSourceUnavailable = errors.New("external source unavailable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrRunNotFound       = errors.New("extraction run not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrStorageDisabled   = errors.New("object storage is not configured")
	ErrObjectNotFound    = errors.New("archived object not found")
)
