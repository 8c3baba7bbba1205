package uplink

import "errors"

// Domain errors for the collector link.
var (
	// ErrConnectFailed indicates the collector could not be reached.
	ErrConnectFailed = errors.New("uplink: connect failed")

	// ErrSendFailed indicates a write to the collector failed.
	ErrSendFailed = errors.New("uplink: send failed")

	// ErrNotConnected indicates there is no current connection.
	ErrNotConnected = errors.New("uplink: not connected")

	// ErrStaleHandle indicates the handle belongs to a connection that has
	// since been released.
	ErrStaleHandle = errors.New("uplink: stale connection handle")
)
