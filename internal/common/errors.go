// Package common defines shared constants and sentinel errors used across
// chanfile components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Request validation errors (surfaced before any backend I/O).
	ErrRangeOutOfBounds = errors.New("range out of bounds")

	// Channel resolution errors. Access must have been granted out-of-band;
	// neither is retried here.
	ErrChannelNotFound = errors.New("channel not found")
	ErrAccessDenied    = errors.New("access denied")

	// Backend transfer errors. Retry policy belongs to the remote client,
	// not to the transfer pipelines.
	ErrBackendFetch = errors.New("backend fetch failed")
	ErrBackendPush  = errors.New("backend push failed")

	// Session lifecycle errors.
	ErrSessionConsumed = errors.New("transfer session already executed")
)
