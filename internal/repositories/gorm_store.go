package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// GORMStore implements Store on top of a *gorm.DB.
type GORMStore struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
	onRetry    func()
}

// GORMStoreOption configures a GORMStore.
type GORMStoreOption func(*GORMStore)

// WithMaxRetries sets how many times a transaction is retried after a
// serialization failure or deadlock.
func WithMaxRetries(n int) GORMStoreOption {
	return func(s *GORMStore) { s.maxRetries = n }
}

// WithRetryHook registers a callback invoked before every retry.
func WithRetryHook(fn func()) GORMStoreOption {
	return func(s *GORMStore) { s.onRetry = fn }
}

// WithBackoff sets the base delay between retries. Attempt n waits n×base.
func WithBackoff(base time.Duration) GORMStoreOption {
	return func(s *GORMStore) { s.backoff = base }
}

// NewGORMStore creates a new GORMStore.
func NewGORMStore(db *gorm.DB, opts ...GORMStoreOption) *GORMStore {
	s := &GORMStore{
		db:         db,
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
		onRetry:    func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GORMStore) Users() UserRepository         { return NewGORMUserRepository(s.db) }
func (s *GORMStore) Addresses() AddressRepository  { return NewGORMAddressRepository(s.db) }
func (s *GORMStore) Products() ProductRepository   { return NewGORMProductRepository(s.db) }
func (s *GORMStore) Variants() VariantRepository   { return NewGORMVariantRepository(s.db) }
func (s *GORMStore) Discounts() DiscountRepository { return NewGORMDiscountRepository(s.db) }
func (s *GORMStore) Orders() OrderRepository       { return NewGORMOrderRepository(s.db) }
func (s *GORMStore) Shipments() ShipmentRepository { return NewGORMShipmentRepository(s.db) }

// Within runs fn in a database transaction, retrying the whole transaction
// when the database reports a serialization failure or a deadlock.
func (s *GORMStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.onRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, gormTx{db: tx})
		})
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "transaction failed after %d attempts", s.maxRetries+1)
}

type gormTx struct {
	db *gorm.DB
}

func (t gormTx) Variants() VariantRepository   { return NewGORMVariantRepository(t.db) }
func (t gormTx) Discounts() DiscountRepository { return NewGORMDiscountRepository(t.db) }
func (t gormTx) Orders() OrderRepository       { return NewGORMOrderRepository(t.db) }
func (t gormTx) Shipments() ShipmentRepository { return NewGORMShipmentRepository(t.db) }

// IsRetryable reports whether err is a transient conflict after which the
// whole transaction may be run again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate maps driver errors onto the package sentinels.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrap(ErrNotFound, op)
	case isUniqueViolation(err):
		return errors.Wrap(ErrDuplicate, op)
	}
	return errors.Wrap(err, op)
}
