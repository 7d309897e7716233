package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrConflict is returned when a conditional update did not match the expected state.
	ErrConflict = errors.New("conflict")
	// ErrCompilation is returned when an intent can't be compiled into an executable plan.
	ErrCompilation = errors.New("compilation failed")
	// ErrAlreadyResolved is returned when a human gate has already been resolved.
	ErrAlreadyResolved = errors.New("already resolved")
)
