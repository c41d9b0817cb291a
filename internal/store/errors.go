package store

import "errors"

// ErrUnavailable marks a failure of the backing store itself (connection loss,
// timeout, cancellation, serialization conflict). Operations failing with it left
// no partial writes and are safe for the caller to retry.
var ErrUnavailable = errors.New("store unavailable")
