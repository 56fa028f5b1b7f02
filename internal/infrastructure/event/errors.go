package event

import "errors"

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")
