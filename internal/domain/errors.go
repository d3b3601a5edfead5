package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrTransport          = errors.New("transport error")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrMissingCounterpart = errors.New("size missing on counterpart venue")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrClosed             = errors.New("closed")
)

// ParseError reports a frame that is not valid JSON or lacks a usable type
// tag.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse frame: %v", e.Err)
}

// Unwrap lets errors.Is match both the cause and ErrMalformedFrame.
func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedFrame, e.Err}
}

// NormalizationError reports a structurally invalid payload and names the
// offending field.
type NormalizationError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: field %q: %s", e.Kind, e.Field, e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return ErrMalformedFrame
}
