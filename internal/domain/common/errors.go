// Package common holds errors shared across domains.
package common

import "errors"

var (
	ErrNotFound = errors.New("requested item not found")
	ErrConflict = errors.New("item already exists or conflict")
)
