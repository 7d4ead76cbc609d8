package relay

import "errors"

// ErrServerClosed - returns by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("relay.Server: closed")
