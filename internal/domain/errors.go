package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrNoMatch       = errors.New("no match")
	ErrCaptureFailed = errors.New("audio capture failed repeatedly")
	ErrNoSelection   = errors.New("no track selected")
	ErrUnavailable   = errors.New("capability unavailable")
	ErrPoolClosed    = errors.New("offload pool is shut down")
)
