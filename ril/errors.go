package ril

import "errors"

var (
	// ErrLaneClosed is returned when a request is dispatched to a lane whose
	// channel is being re-established.
	ErrLaneClosed = errors.New("ril: lane closed")

	// ErrNoChannel is returned by Session.Default before any channel has
	// been initialised.
	ErrNoChannel = errors.New("ril: no default channel")

	// ErrUnknownRequest is returned by ParseCode for unknown names.
	ErrUnknownRequest = errors.New("ril: unknown request")

	// ErrNoDialer is returned by New when no normal lane dialer is set.
	ErrNoDialer = errors.New("ril: normal lane dialer is required")

	// errDeferred is returned by handlers that complete their request later
	// from a scheduled event.
	errDeferred = errors.New("completion deferred")
)
