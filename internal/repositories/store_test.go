package repositories_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

func newSQLiteStore(t *testing.T) *repositories.GORMStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.Database{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repositories.NewGORMStore(db, repositories.WithBackoff(time.Millisecond))
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store repositories.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, repositories.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func seedVariant(t *testing.T, store repositories.Store, stock int, active bool) models.Variant {
	t.Helper()
	ctx := context.Background()
	product := models.Product{Name: "Tee", IsActive: active}
	require.NoError(t, store.Products().Create(ctx, &product))
	variant := models.Variant{ProductID: product.ID, SKU: "TEE-" + uuid.NewString()[:8], Price: decimal.RequireFromString("12.50"), Stock: stock}
	require.NoError(t, store.Variants().Create(ctx, &variant))
	return variant
}

func newOrder(userID, number string, items ...models.OrderItem) *models.Order {
	for i := range items {
		items[i].ID = uuid.NewString()
	}
	return &models.Order{
		ID:                uuid.NewString(),
		OrderNumber:       number,
		UserID:            userID,
		Status:            models.OrderPending,
		Subtotal:          decimal.NewFromInt(10),
		Total:             decimal.NewFromInt(10),
		ShippingAddressID: "addr",
		Items:             items,
	}
}

func TestStore_VariantStock(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		v := seedVariant(t, store, 3, true)

		found, err := store.Variants().FindByIDs(ctx, []string{v.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.True(t, found[0].Product.IsActive)
		assert.True(t, found[0].Price.Equal(decimal.RequireFromString("12.5")))

		require.NoError(t, store.Variants().DecrementStock(ctx, v.ID, 2))

		err = store.Variants().DecrementStock(ctx, v.ID, 2)
		require.ErrorIs(t, err, repositories.ErrInsufficientStock)
		var stockErr *repositories.StockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 1, stockErr.Available)
		assert.Equal(t, 2, stockErr.Requested)

		require.NoError(t, store.Variants().IncrementStock(ctx, v.ID, 4))
		got, err := store.Variants().GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Stock)

		assert.ErrorIs(t, store.Variants().IncrementStock(ctx, "missing", 1), repositories.ErrNotFound)
	})
}

func TestStore_DiscountUsageCap(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		maxUses := 2
		d := models.Discount{Code: "TWICE", Type: models.DiscountFixed, Value: decimal.NewFromInt(5), MaxUses: &maxUses, IsActive: true}
		require.NoError(t, store.Discounts().Create(ctx, &d))

		require.NoError(t, store.Discounts().IncrementUsage(ctx, d.ID))
		require.NoError(t, store.Discounts().IncrementUsage(ctx, d.ID))
		assert.ErrorIs(t, store.Discounts().IncrementUsage(ctx, d.ID), repositories.ErrUsageLimitReached)

		got, err := store.Discounts().FindByCode(ctx, "TWICE")
		require.NoError(t, err)
		assert.Equal(t, 2, got.CurrentUses)

		require.NoError(t, store.Discounts().DecrementUsage(ctx, d.ID))
		got, err = store.Discounts().GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.CurrentUses)

		dup := models.Discount{Code: "TWICE", Type: models.DiscountPercent, Value: decimal.NewFromInt(5), IsActive: true}
		assert.ErrorIs(t, store.Discounts().Create(ctx, &dup), repositories.ErrDuplicate)

		_, err = store.Discounts().FindByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestStore_DiscountUpdateKeepsUsage(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		d := models.Discount{Code: "EDIT", Type: models.DiscountPercent, Value: decimal.NewFromInt(10), IsActive: true}
		require.NoError(t, store.Discounts().Create(ctx, &d))
		require.NoError(t, store.Discounts().IncrementUsage(ctx, d.ID))

		d.IsActive = false
		d.Value = decimal.NewFromInt(15)
		d.CurrentUses = 0
		d.UpdatedAt = time.Now()
		require.NoError(t, store.Discounts().Update(ctx, &d))

		got, err := store.Discounts().GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.True(t, got.Value.Equal(decimal.NewFromInt(15)))
		assert.Equal(t, 1, got.CurrentUses)

		active := false
		list, total, err := store.Discounts().List(ctx, repositories.DiscountFilter{Search: "ed", Active: &active}, repositories.Pagination{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Len(t, list, 1)

		require.NoError(t, store.Discounts().Delete(ctx, d.ID))
		assert.ErrorIs(t, store.Discounts().Delete(ctx, d.ID), repositories.ErrNotFound)
	})
}

func TestStore_OrderInsertAndTransition(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		v := seedVariant(t, store, 10, true)

		order := newOrder("u1", "ORD-1-001", models.OrderItem{VariantID: v.ID, Quantity: 2, UnitPrice: v.Price, Subtotal: v.Price.Mul(decimal.NewFromInt(2))})
		require.NoError(t, store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
			return tx.Orders().Insert(ctx, order)
		}))

		got, err := store.Orders().FindByNumber(ctx, "ORD-1-001")
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, order.ID, got.Items[0].OrderID)
		assert.Equal(t, 2, got.Items[0].Quantity)

		clash := newOrder("u1", "ORD-1-001")
		assert.ErrorIs(t, store.Orders().Insert(ctx, clash), repositories.ErrDuplicate)

		terminal := []models.OrderStatus{models.OrderCancelled, models.OrderDelivered}
		changed, err := store.Orders().TransitionStatus(ctx, order.ID, models.OrderCancelled, terminal)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = store.Orders().TransitionStatus(ctx, order.ID, models.OrderCancelled, terminal)
		require.NoError(t, err)
		assert.False(t, changed)

		notes := "left at door"
		require.NoError(t, store.Orders().UpdateStatus(ctx, order.ID, models.OrderRefunded, &notes))
		got, err = store.Orders().FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderRefunded, got.Status)
		assert.Equal(t, notes, got.Notes)

		assert.ErrorIs(t, store.Orders().UpdateStatus(ctx, "missing", models.OrderShipped, nil), repositories.ErrNotFound)
	})
}

func TestStore_WithinRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		v := seedVariant(t, store, 5, true)
		boom := errors.New("boom")

		err := store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
			if err := tx.Orders().Insert(ctx, newOrder("u1", "ORD-2-001")); err != nil {
				return err
			}
			if err := tx.Variants().DecrementStock(ctx, v.ID, 3); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Variants().GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Stock)
		_, err = store.Orders().FindByNumber(ctx, "ORD-2-001")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestStore_ListOrdersNewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		base := time.Now().Add(-time.Hour).UTC()
		for i := 0; i < 5; i++ {
			o := newOrder("u1", fmt.Sprintf("ORD-3-%03d", i))
			o.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, store.Orders().Insert(ctx, o))
		}
		other := newOrder("u2", "ORD-3-999")
		require.NoError(t, store.Orders().Insert(ctx, other))

		page, total, err := store.Orders().List(ctx, repositories.OrderFilter{UserID: "u1"}, repositories.Pagination{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "ORD-3-004", page[0].OrderNumber)
		assert.Equal(t, "ORD-3-003", page[1].OrderNumber)

		page, _, err = store.Orders().List(ctx, repositories.OrderFilter{UserID: "u1"}, repositories.Pagination{Page: 3, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "ORD-3-000", page[0].OrderNumber)
	})
}

func TestStore_Shipments(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		sh := models.Shipment{OrderID: "o1", Carrier: "DHL", TrackingNumber: "T1", Status: models.ShipmentPending}
		require.NoError(t, store.Shipments().Create(ctx, &sh))

		again := models.Shipment{OrderID: "o1", Status: models.ShipmentPending}
		assert.ErrorIs(t, store.Shipments().Create(ctx, &again), repositories.ErrDuplicate)

		now := time.Now().UTC()
		sh.Status = models.ShipmentShipped
		sh.ShippedAt = &now
		sh.UpdatedAt = now
		require.NoError(t, store.Shipments().Update(ctx, &sh))

		got, err := store.Shipments().GetByOrderID(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, models.ShipmentShipped, got.Status)
		assert.NotNil(t, got.ShippedAt)

		list, total, err := store.Shipments().List(ctx, repositories.Pagination{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Len(t, list, 1)

		require.NoError(t, store.Shipments().Delete(ctx, sh.ID))
		_, err = store.Shipments().GetByID(ctx, sh.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestStore_UsersAndAddresses(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		u := models.User{Username: "ana", Email: "ana@example.com", Password: "hash"}
		require.NoError(t, store.Users().Create(ctx, &u))
		assert.Equal(t, models.RoleCustomer, u.Role)

		dup := models.User{Username: "ana", Email: "other@example.com", Password: "hash"}
		assert.ErrorIs(t, store.Users().Create(ctx, &dup), repositories.ErrDuplicate)

		got, err := store.Users().GetByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		addr := models.Address{UserID: u.ID, Line1: "1 Main St", City: "Springfield", Country: "US"}
		require.NoError(t, store.Addresses().Create(ctx, &addr))

		_, err = store.Addresses().FindOwnedBy(ctx, addr.ID, u.ID)
		require.NoError(t, err)
		_, err = store.Addresses().FindOwnedBy(ctx, addr.ID, "someone-else")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestPagination(t *testing.T) {
	p := repositories.Pagination{Page: 0, Limit: 1000}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, repositories.MaxPageSize, p.Limit)
	assert.Equal(t, 40, repositories.Pagination{Page: 3, Limit: 20}.Offset())
	assert.Equal(t, repositories.DefaultPageSize, repositories.Pagination{}.Normalize().Limit)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, repositories.IsRetryable(nil))
	assert.False(t, repositories.IsRetryable(errors.New("syntax error")))
	assert.True(t, repositories.IsRetryable(errors.New("database is locked")))
}
