package cache

import "errors"

var (
	ErrNotFound      = errors.New("draft not found")
	ErrAlreadyExists = errors.New("draft already exists")
)
