package services

import (
	"math"

	"github.com/go-faster/errors"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// Viewer identifies the caller of a read. Admins see every record.
type Viewer struct {
	UserID string
	Admin  bool
}

func (v Viewer) owns(order *models.Order) bool {
	return v.Admin || order.UserID == v.UserID
}

// PageMeta describes the position of a page within a listing.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

func newPage[T any](data []T, total int64, p repositories.Pagination) Page[T] {
	p = p.Normalize()
	if data == nil {
		data = []T{}
	}
	return Page[T]{
		Data: data,
		Meta: PageMeta{
			Total:      total,
			Page:       p.Page,
			Limit:      p.Limit,
			TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
		},
	}
}

func invalidField(field, msg string) error {
	return apperror.New(apperror.KindValidation, apperror.CodeValidation, "Validation failed").
		WithDetails(map[string]any{field: msg})
}

// storeError passes classified errors through, turns ErrNotFound into
// notFound and everything else into a transient failure.
func storeError(err error, notFound *apperror.Error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	if notFound != nil && errors.Is(err, repositories.ErrNotFound) {
		return notFound.Wrap(err)
	}
	return apperror.Transient(err)
}
