package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
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

// forEachStore runs fn against the in-memory store and GORM over SQLite.
func forEachStore(t *testing.T, fn func(t *testing.T, store repositories.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, repositories.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, money(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func seedVariant(t *testing.T, store repositories.Store, price string, stock int, active bool) models.Variant {
	t.Helper()
	ctx := context.Background()
	product := models.Product{Name: "Product " + uuid.NewString()[:6], IsActive: active}
	require.NoError(t, store.Products().Create(ctx, &product))
	variant := models.Variant{
		ProductID: product.ID,
		SKU:       "SKU-" + uuid.NewString()[:8],
		Size:      "M",
		Price:     money(price),
		Stock:     stock,
	}
	require.NoError(t, store.Variants().Create(ctx, &variant))
	return variant
}

func seedAddress(t *testing.T, store repositories.Store, userID string) string {
	t.Helper()
	addr := models.Address{UserID: userID, Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	require.NoError(t, store.Addresses().Create(context.Background(), &addr))
	return addr.ID
}

func seedDiscount(t *testing.T, store repositories.Store, d models.Discount) models.Discount {
	t.Helper()
	if d.Code == "" {
		d.Code = "CODE-" + uuid.NewString()[:6]
	}
	require.NoError(t, store.Discounts().Create(context.Background(), &d))
	return d
}

func stockOf(t *testing.T, store repositories.Store, variantID string) int {
	t.Helper()
	v, err := store.Variants().GetByID(context.Background(), variantID)
	require.NoError(t, err)
	return v.Stock
}

func usesOf(t *testing.T, store repositories.Store, discountID string) int {
	t.Helper()
	d, err := store.Discounts().GetByID(context.Background(), discountID)
	require.NoError(t, err)
	return d.CurrentUses
}

func intPtr(i int) *int { return &i }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt events.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}
