package config

import "errors"

var (
	ErrMissingConfig      = errors.New("config: configuration is missing")
	ErrInvalidListenAddr  = errors.New("config: invalid listen address")
	ErrInvalidChunkSize   = errors.New("config: chunk size must be positive")
	ErrInvalidRetryPolicy = errors.New("config: retry policy is invalid")
	ErrMissingDatabase    = errors.New("config: database name is required")
	ErrMissingHosts       = errors.New("config: at least one host is required")
)
