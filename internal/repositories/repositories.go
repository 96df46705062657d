// Package repositories defines the store interfaces used by the services and
// their GORM and in-memory implementations.
package repositories

import (
	"context"

	"storefront/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination selects a page of a listing. Page is 1-based.
type Pagination struct {
	Page  int
	Limit int
}

// Normalize clamps p to valid bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// OrderFilter narrows an order listing. Zero fields match everything.
type OrderFilter struct {
	UserID string
	Status models.OrderStatus
}

// DiscountFilter narrows a discount listing.
type DiscountFilter struct {
	Search string // case-insensitive substring of the code
	Active *bool
}

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AddressRepository gives access to user-owned addresses.
type AddressRepository interface {
	Create(ctx context.Context, address *models.Address) error
	// FindOwnedBy returns ErrNotFound when the address does not exist or
	// belongs to another user.
	FindOwnedBy(ctx context.Context, id, userID string) (*models.Address, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
}

// VariantRepository reads variants and mutates their stock.
type VariantRepository interface {
	Create(ctx context.Context, variant *models.Variant) error
	GetByID(ctx context.Context, id string) (*models.Variant, error)
	// FindByIDs returns the variants that exist among ids with their
	// product loaded. Missing ids are silently skipped.
	FindByIDs(ctx context.Context, ids []string) ([]models.Variant, error)
	// DecrementStock atomically removes qty units, failing with a
	// *StockError when fewer than qty are available.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

type DiscountRepository interface {
	Create(ctx context.Context, discount *models.Discount) error
	GetByID(ctx context.Context, id string) (*models.Discount, error)
	FindByCode(ctx context.Context, code string) (*models.Discount, error)
	List(ctx context.Context, filter DiscountFilter, page Pagination) ([]models.Discount, int64, error)
	// Update writes the editable fields. CurrentUses is never written.
	Update(ctx context.Context, discount *models.Discount) error
	Delete(ctx context.Context, id string) error
	// IncrementUsage atomically counts one use, failing with
	// ErrUsageLimitReached when the discount is inactive or exhausted.
	IncrementUsage(ctx context.Context, id string) error
	// DecrementUsage releases one use; it never goes below zero.
	DecrementUsage(ctx context.Context, id string) error
}

type OrderRepository interface {
	// Insert stores the order and its items. A clashing order number
	// yields ErrDuplicate.
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter, page Pagination) ([]models.Order, int64, error)
	// UpdateStatus sets the status and, when notes is not nil, the notes.
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, notes *string) error
	// TransitionStatus sets the status to `to` only if the current status
	// is not one of unless. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id string, to models.OrderStatus, unless []models.OrderStatus) (bool, error)
}

type ShipmentRepository interface {
	// Create yields ErrDuplicate when the order already has a shipment.
	Create(ctx context.Context, shipment *models.Shipment) error
	GetByID(ctx context.Context, id string) (*models.Shipment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	List(ctx context.Context, page Pagination) ([]models.Shipment, int64, error)
	Update(ctx context.Context, shipment *models.Shipment) error
	Delete(ctx context.Context, id string) error
}

// Tx exposes the writers bound to one transaction.
type Tx interface {
	Variants() VariantRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	Shipments() ShipmentRepository
}

// UnitOfWork runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise. fn may run more than once when the
// database asks for a retry, so it must not have side effects outside tx.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store groups every repository with the unit of work over them.
type Store interface {
	UnitOfWork
	Users() UserRepository
	Addresses() AddressRepository
	Products() ProductRepository
	Variants() VariantRepository
	Discounts() DiscountRepository
	Orders() OrderRepository
	Shipments() ShipmentRepository
}
