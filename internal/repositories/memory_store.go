package repositories

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"storefront/internal/models"
)

// MemoryStore is an in-memory implementation of Store. Within holds the
// write lock for the whole callback and restores a snapshot when the
// callback fails, giving the same all-or-nothing behaviour as a database
// transaction. Callbacks must only use the Tx they are given.
type MemoryStore struct {
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	users     map[string]models.User
	addresses map[string]models.Address
	products  map[string]models.Product
	variants  map[string]models.Variant
	discounts map[string]models.Discount
	orders    map[string]models.Order
	shipments map[string]models.Shipment
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryData{
		users:     make(map[string]models.User),
		addresses: make(map[string]models.Address),
		products:  make(map[string]models.Product),
		variants:  make(map[string]models.Variant),
		discounts: make(map[string]models.Discount),
		orders:    make(map[string]models.Order),
		shipments: make(map[string]models.Shipment),
	}}
}

func (d memoryData) clone() memoryData {
	out := memoryData{
		users:     cloneMap(d.users),
		addresses: cloneMap(d.addresses),
		products:  cloneMap(d.products),
		variants:  cloneMap(d.variants),
		discounts: cloneMap(d.discounts),
		orders:    make(map[string]models.Order, len(d.orders)),
		shipments: cloneMap(d.shipments),
	}
	for id, o := range d.orders {
		out.orders[id] = copyOrder(o)
	}
	return out
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyOrder(o models.Order) models.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func (s *MemoryStore) Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, memoryTx{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	s *MemoryStore
}

func (t memoryTx) Variants() VariantRepository   { return memVariants{s: t.s, inTx: true} }
func (t memoryTx) Discounts() DiscountRepository { return memDiscounts{s: t.s, inTx: true} }
func (t memoryTx) Orders() OrderRepository       { return memOrders{s: t.s, inTx: true} }
func (t memoryTx) Shipments() ShipmentRepository { return memShipments{s: t.s, inTx: true} }

func (s *MemoryStore) Users() UserRepository         { return memUsers{s: s} }
func (s *MemoryStore) Addresses() AddressRepository  { return memAddresses{s: s} }
func (s *MemoryStore) Products() ProductRepository   { return memProducts{s: s} }
func (s *MemoryStore) Variants() VariantRepository   { return memVariants{s: s} }
func (s *MemoryStore) Discounts() DiscountRepository { return memDiscounts{s: s} }
func (s *MemoryStore) Orders() OrderRepository       { return memOrders{s: s} }
func (s *MemoryStore) Shipments() ShipmentRepository { return memShipments{s: s} }

// read and write take the store lock unless the caller already holds it
// through Within.
func (s *MemoryStore) read(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) write(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func notFound(what string) error {
	return errors.Wrap(ErrNotFound, what)
}

func paginate[T any](items []T, page Pagination) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+page.Limit, len(items))
	return items[start:end]
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	defer r.s.write(false)()
	for _, u := range r.s.data.users {
		if u.Username == user.Username || u.Email == user.Email {
			return errors.Wrap(ErrDuplicate, "create user")
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)
	r.s.data.users[user.ID] = *user
	return nil
}

func (r memUsers) find(match func(models.User) bool) (*models.User, error) {
	defer r.s.read(false)()
	for _, u := range r.s.data.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, notFound("get user")
}

func (r memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

type memAddresses struct{ s *MemoryStore }

func (r memAddresses) Create(ctx context.Context, address *models.Address) error {
	defer r.s.write(false)()
	if address.ID == "" {
		address.ID = uuid.New().String()
	}
	stamp(&address.CreatedAt, &address.UpdatedAt)
	r.s.data.addresses[address.ID] = *address
	return nil
}

func (r memAddresses) FindOwnedBy(ctx context.Context, id, userID string) (*models.Address, error) {
	defer r.s.read(false)()
	a, ok := r.s.data.addresses[id]
	if !ok || a.UserID != userID {
		return nil, notFound("find address")
	}
	return &a, nil
}

type memProducts struct{ s *MemoryStore }

func (r memProducts) Create(ctx context.Context, product *models.Product) error {
	defer r.s.write(false)()
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	stamp(&product.CreatedAt, &product.UpdatedAt)
	r.s.data.products[product.ID] = *product
	return nil
}

func (r memProducts) GetByID(ctx context.Context, id string) (*models.Product, error) {
	defer r.s.read(false)()
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, notFound("get product " + id)
	}
	return &p, nil
}

type memVariants struct {
	s    *MemoryStore
	inTx bool
}

func (r memVariants) Create(ctx context.Context, variant *models.Variant) error {
	defer r.s.write(r.inTx)()
	if variant.ID == "" {
		variant.ID = uuid.New().String()
	}
	stamp(&variant.CreatedAt, &variant.UpdatedAt)
	v := *variant
	v.Product = models.Product{}
	r.s.data.variants[v.ID] = v
	return nil
}

func (r memVariants) withProduct(v models.Variant) models.Variant {
	v.Product = r.s.data.products[v.ProductID]
	return v
}

func (r memVariants) GetByID(ctx context.Context, id string) (*models.Variant, error) {
	defer r.s.read(r.inTx)()
	v, ok := r.s.data.variants[id]
	if !ok {
		return nil, notFound("get variant " + id)
	}
	v = r.withProduct(v)
	return &v, nil
}

func (r memVariants) FindByIDs(ctx context.Context, ids []string) ([]models.Variant, error) {
	defer r.s.read(r.inTx)()
	out := make([]models.Variant, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if v, ok := r.s.data.variants[id]; ok {
			out = append(out, r.withProduct(v))
		}
	}
	return out, nil
}

func (r memVariants) DecrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.write(r.inTx)()
	v, ok := r.s.data.variants[id]
	if !ok {
		return notFound("decrement stock " + id)
	}
	if v.Stock < qty {
		return &StockError{VariantID: id, Available: v.Stock, Requested: qty}
	}
	v.Stock -= qty
	r.s.data.variants[id] = v
	return nil
}

func (r memVariants) IncrementStock(ctx context.Context, id string, qty int) error {
	defer r.s.write(r.inTx)()
	v, ok := r.s.data.variants[id]
	if !ok {
		return notFound("increment stock " + id)
	}
	v.Stock += qty
	r.s.data.variants[id] = v
	return nil
}

type memDiscounts struct {
	s    *MemoryStore
	inTx bool
}

func (r memDiscounts) Create(ctx context.Context, discount *models.Discount) error {
	defer r.s.write(r.inTx)()
	for _, d := range r.s.data.discounts {
		if d.Code == discount.Code {
			return errors.Wrap(ErrDuplicate, "create discount")
		}
	}
	if discount.ID == "" {
		discount.ID = uuid.New().String()
	}
	stamp(&discount.CreatedAt, &discount.UpdatedAt)
	r.s.data.discounts[discount.ID] = *discount
	return nil
}

func (r memDiscounts) GetByID(ctx context.Context, id string) (*models.Discount, error) {
	defer r.s.read(r.inTx)()
	d, ok := r.s.data.discounts[id]
	if !ok {
		return nil, notFound("get discount " + id)
	}
	return &d, nil
}

func (r memDiscounts) FindByCode(ctx context.Context, code string) (*models.Discount, error) {
	defer r.s.read(r.inTx)()
	for _, d := range r.s.data.discounts {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, notFound("find discount by code")
}

func (r memDiscounts) List(ctx context.Context, filter DiscountFilter, page Pagination) ([]models.Discount, int64, error) {
	defer r.s.read(r.inTx)()
	var out []models.Discount
	search := strings.ToLower(filter.Search)
	for _, d := range r.s.data.discounts {
		if search != "" && !strings.Contains(strings.ToLower(d.Code), search) {
			continue
		}
		if filter.Active != nil && d.IsActive != *filter.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), int64(len(out)), nil
}

func (r memDiscounts) Update(ctx context.Context, discount *models.Discount) error {
	defer r.s.write(r.inTx)()
	current, ok := r.s.data.discounts[discount.ID]
	if !ok {
		return notFound("update discount " + discount.ID)
	}
	for _, d := range r.s.data.discounts {
		if d.ID != discount.ID && d.Code == discount.Code {
			return errors.Wrap(ErrDuplicate, "update discount")
		}
	}
	updated := *discount
	updated.CurrentUses = current.CurrentUses
	updated.CreatedAt = current.CreatedAt
	r.s.data.discounts[discount.ID] = updated
	return nil
}

func (r memDiscounts) Delete(ctx context.Context, id string) error {
	defer r.s.write(r.inTx)()
	if _, ok := r.s.data.discounts[id]; !ok {
		return notFound("delete discount " + id)
	}
	delete(r.s.data.discounts, id)
	return nil
}

func (r memDiscounts) IncrementUsage(ctx context.Context, id string) error {
	defer r.s.write(r.inTx)()
	d, ok := r.s.data.discounts[id]
	if !ok || !d.IsActive || (d.MaxUses != nil && d.CurrentUses >= *d.MaxUses) {
		return ErrUsageLimitReached
	}
	d.CurrentUses++
	r.s.data.discounts[id] = d
	return nil
}

func (r memDiscounts) DecrementUsage(ctx context.Context, id string) error {
	defer r.s.write(r.inTx)()
	d, ok := r.s.data.discounts[id]
	if ok && d.CurrentUses > 0 {
		d.CurrentUses--
		r.s.data.discounts[id] = d
	}
	return nil
}

type memOrders struct {
	s    *MemoryStore
	inTx bool
}

func (r memOrders) Insert(ctx context.Context, order *models.Order) error {
	defer r.s.write(r.inTx)()
	for _, o := range r.s.data.orders {
		if o.OrderNumber == order.OrderNumber {
			return errors.Wrap(ErrDuplicate, "insert order")
		}
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	stamp(&order.CreatedAt, &order.UpdatedAt)
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
	}
	r.s.data.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r memOrders) FindByID(ctx context.Context, id string) (*models.Order, error) {
	defer r.s.read(r.inTx)()
	o, ok := r.s.data.orders[id]
	if !ok {
		return nil, notFound("get order")
	}
	o = copyOrder(o)
	return &o, nil
}

func (r memOrders) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	defer r.s.read(r.inTx)()
	for _, o := range r.s.data.orders {
		if o.OrderNumber == orderNumber {
			o = copyOrder(o)
			return &o, nil
		}
	}
	return nil, notFound("get order")
}

func (r memOrders) List(ctx context.Context, filter OrderFilter, page Pagination) ([]models.Order, int64, error) {
	defer r.s.read(r.inTx)()
	var out []models.Order
	for _, o := range r.s.data.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OrderNumber > out[j].OrderNumber
	})
	return paginate(out, page), int64(len(out)), nil
}

func (r memOrders) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, notes *string) error {
	defer r.s.write(r.inTx)()
	o, ok := r.s.data.orders[id]
	if !ok {
		return notFound("update order status " + id)
	}
	o.Status = status
	if notes != nil {
		o.Notes = *notes
	}
	o.UpdatedAt = time.Now()
	r.s.data.orders[id] = o
	return nil
}

func (r memOrders) TransitionStatus(ctx context.Context, id string, to models.OrderStatus, unless []models.OrderStatus) (bool, error) {
	defer r.s.write(r.inTx)()
	o, ok := r.s.data.orders[id]
	if !ok || slices.Contains(unless, o.Status) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.s.data.orders[id] = o
	return true, nil
}

type memShipments struct {
	s    *MemoryStore
	inTx bool
}

func (r memShipments) Create(ctx context.Context, shipment *models.Shipment) error {
	defer r.s.write(r.inTx)()
	for _, sh := range r.s.data.shipments {
		if sh.OrderID == shipment.OrderID {
			return errors.Wrap(ErrDuplicate, "create shipment")
		}
	}
	if shipment.ID == "" {
		shipment.ID = uuid.New().String()
	}
	stamp(&shipment.CreatedAt, &shipment.UpdatedAt)
	r.s.data.shipments[shipment.ID] = *shipment
	return nil
}

func (r memShipments) GetByID(ctx context.Context, id string) (*models.Shipment, error) {
	defer r.s.read(r.inTx)()
	sh, ok := r.s.data.shipments[id]
	if !ok {
		return nil, notFound("get shipment " + id)
	}
	return &sh, nil
}

func (r memShipments) GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	defer r.s.read(r.inTx)()
	for _, sh := range r.s.data.shipments {
		if sh.OrderID == orderID {
			return &sh, nil
		}
	}
	return nil, notFound("get shipment for order " + orderID)
}

func (r memShipments) List(ctx context.Context, page Pagination) ([]models.Shipment, int64, error) {
	defer r.s.read(r.inTx)()
	out := make([]models.Shipment, 0, len(r.s.data.shipments))
	for _, sh := range r.s.data.shipments {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), int64(len(out)), nil
}

func (r memShipments) Update(ctx context.Context, shipment *models.Shipment) error {
	defer r.s.write(r.inTx)()
	current, ok := r.s.data.shipments[shipment.ID]
	if !ok {
		return notFound("update shipment " + shipment.ID)
	}
	updated := *shipment
	updated.OrderID = current.OrderID
	updated.CreatedAt = current.CreatedAt
	r.s.data.shipments[shipment.ID] = updated
	return nil
}

func (r memShipments) Delete(ctx context.Context, id string) error {
	defer r.s.write(r.inTx)()
	if _, ok := r.s.data.shipments[id]; !ok {
		return notFound("delete shipment " + id)
	}
	delete(r.s.data.shipments, id)
	return nil
}
