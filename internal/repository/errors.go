package repository

import "github.com/pkg/errors"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")
