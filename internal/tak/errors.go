package tak

import (
	"errors"

	"github.com/benmeehan/tak-agent/pkg/location"
)

var (
	// ErrPositionUnavailable means no usable position could be sampled; the tick is skipped.
	ErrPositionUnavailable = location.ErrPositionUnavailable
	// ErrDuplicatePosition means the sample did not move past the duplicate threshold.
	ErrDuplicatePosition = errors.New("duplicate position")
	ErrConnectionFailed  = errors.New("connection failed")
	ErrSendFailed        = errors.New("send failed")
	// ErrMaxRetriesExceeded is logged when the reconnect policy gives up.
	ErrMaxRetriesExceeded = errors.New("max reconnect retries exceeded")
	ErrAlreadyConnected   = errors.New("client is already connected")
	ErrNotConnected       = errors.New("client is not connected")
	ErrUpdateInFlight     = errors.New("position update already in flight")
	ErrClientStopped      = errors.New("client is stopped")
	ErrInvalidConfig      = errors.New("invalid client configuration")
)
