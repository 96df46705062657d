package repositories

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUsageLimitReached = errors.New("discount usage limit reached")
)

// StockError reports a failed stock decrement.
type StockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s (requested: %d, available: %d)",
		e.VariantID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
