// Package apperr holds the error sentinels shared by every layer. It
// imports nothing from the module so that leaf packages such as datekey
// can wrap the same sentinels the domain model exposes.
package apperr

import "errors"

// ErrValidation marks input rejected at the boundary.
var ErrValidation = errors.New("validation error")

// ErrNotFound marks a lookup of an unknown identity.
var ErrNotFound = errors.New("not found")
