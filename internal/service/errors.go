package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrBudgetExceeded      = errors.New("budget exceeded")
	ErrExportLimitExceeded = errors.New("export limit exceeded")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrConflict            = errors.New("already exists")
)

// BudgetExceededError is the business outcome of a failed reservation. It
// matches ErrBudgetExceeded with errors.Is.
type BudgetExceededError struct {
	Year      int
	Month     int
	Effective int64
	Committed int64
	Requested int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for %d-%02d: requested %d, committed %d of %d (remaining %d)",
		e.Year, e.Month, e.Requested, e.Committed, e.Effective, e.Remaining())
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Remaining is what is left of the effective budget before the request.
func (e *BudgetExceededError) Remaining() int64 {
	if e.Committed >= e.Effective {
		return 0
	}
	return e.Effective - e.Committed
}
