package domain

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrStateConflict     = errors.New("state conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)
