package server

import "errors"

// Server-specific errors
var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrMaxClientsReached    = errors.New("maximum feed clients reached")
	ErrFeedClosed           = errors.New("feed is closed")
)
