package agent

import "errors"

var (
	// ErrToolNotFound is returned by the registry when a tool name has no
	// registered implementation.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolAlreadyRegistered guards against accidental name collisions
	// at process start.
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)
