package plugins

import "errors"

var (
	ErrInvalidToken      = errors.New("plugins: invalid token")
	ErrTokenInUse        = errors.New("plugins: token already claimed")
	ErrAlreadyLoaded     = errors.New("plugins: plugin already loaded")
	ErrNotLoaded         = errors.New("plugins: plugin not loaded")
	ErrPluginNotFound    = errors.New("plugins: plugin not found")
	ErrNoDefaultCommand  = errors.New("plugins: default command not defined")
	ErrUnknownCommand    = errors.New("plugins: unknown command")
	ErrAlreadyRegistered = errors.New("plugins: instance already registered")
	ErrNotRegistered     = errors.New("plugins: instance not registered")
	ErrInvalidKind       = errors.New("plugins: invalid plugin kind")
)
