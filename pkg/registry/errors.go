package registry

import "errors"

var (
	ErrAccountNotFound = errors.New("registry: cloud account not found")
	ErrTaskNotFound    = errors.New("registry: task not found")
)
