// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import (
	"database/sql"
	"errors"
)

// IsNotFound reports whether err means the requested row does not exist.
// Implementations signal a missing row with sql.ErrNoRows, possibly wrapped.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
