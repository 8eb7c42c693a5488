package queue

import "errors"

// ErrClosed is returned by Put/Take once a queue has been closed for
// shutdown.
var ErrClosed = errors.New("queue: closed")
