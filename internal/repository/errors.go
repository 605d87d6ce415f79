package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrStaleState is returned when a check-and-set update matched no row because
	// the stored state moved on.
	ErrStaleState = errors.New("stored state changed concurrently")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

const pqUniqueViolation = "23505"

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}
