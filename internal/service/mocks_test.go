package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/cache"
	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/fjod/go_cart/orders-service/internal/notifier"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// memState is the whole fake database. Transactions work on a deep copy
// that replaces the committed state on success.
type memState struct {
	carts     map[string]*domain.Cart
	addresses map[int64]*domain.Address
	products  map[int64]*domain.Product
	payments  map[uuid.UUID]*domain.Payment
	orders    map[uuid.UUID]*domain.Order
	history   []domain.StatusHistory
	audits    []domain.AuditEntry
	outbox    []domain.OutboxEvent
	nextID    int64
	clock     time.Time
}

func newMemState() *memState {
	return &memState{
		carts:     map[string]*domain.Cart{},
		addresses: map[int64]*domain.Address{},
		products:  map[int64]*domain.Product{},
		payments:  map[uuid.UUID]*domain.Payment{},
		orders:    map[uuid.UUID]*domain.Order{},
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		carts:     make(map[string]*domain.Cart, len(s.carts)),
		addresses: make(map[int64]*domain.Address, len(s.addresses)),
		products:  make(map[int64]*domain.Product, len(s.products)),
		payments:  make(map[uuid.UUID]*domain.Payment, len(s.payments)),
		orders:    make(map[uuid.UUID]*domain.Order, len(s.orders)),
		history:   append([]domain.StatusHistory(nil), s.history...),
		audits:    append([]domain.AuditEntry(nil), s.audits...),
		outbox:    append([]domain.OutboxEvent(nil), s.outbox...),
		nextID:    s.nextID,
		clock:     s.clock,
	}
	for k, v := range s.carts {
		cart := *v
		cart.Items = append([]domain.CartItem(nil), v.Items...)
		c.carts[k] = &cart
	}
	for k, v := range s.addresses {
		a := *v
		c.addresses[k] = &a
	}
	for k, v := range s.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range s.payments {
		p := *v
		c.payments[k] = &p
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.Payment = nil
	return &cp
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memState) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type memStore struct {
	mu    sync.Mutex
	state *memState

	failMu sync.Mutex
	failOn map[string]error
	calls  map[string]int

	commits int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState(), failOn: map[string]error{}, calls: map[string]int{}}
}

type memTxKey struct{}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	if outer, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx, outer)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx), tx); err != nil {
		return err
	}
	m.state = tx.state
	m.commits++
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) fail(method string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.failOn[method] = err
}

func (m *memStore) injected(method string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.calls[method]++
	return m.failOn[method]
}

func (m *memStore) callCount(method string) int {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.calls[method]
}

// snapshot returns a copy of the committed state for assertions.
func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// seed mutates committed state directly.
func (m *memStore) seed(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

type memTx struct {
	store *memStore
	state *memState
	hooks []func()
}

func (t *memTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

func (t *memTx) GetCartForUpdate(_ context.Context, email string) (*domain.Cart, error) {
	if err := t.store.injected("GetCartForUpdate"); err != nil {
		return nil, err
	}
	cart, ok := t.state.carts[email]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	for i := range cp.Items {
		if p, ok := t.state.products[cp.Items[i].ProductID]; ok {
			cp.Items[i].ProductName = p.Name
		}
	}
	return &cp, nil
}

func (t *memTx) RemoveCartItems(_ context.Context, cartID int64, productIDs []int64) error {
	if err := t.store.injected("RemoveCartItems"); err != nil {
		return err
	}
	remove := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		remove[id] = struct{}{}
	}
	for _, cart := range t.state.carts {
		if cart.ID != cartID {
			continue
		}
		kept := cart.Items[:0]
		for _, item := range cart.Items {
			if _, ok := remove[item.ProductID]; !ok {
				kept = append(kept, item)
			}
		}
		cart.Items = kept
	}
	return nil
}

func (t *memTx) UpdateCartTotal(_ context.Context, cartID int64, total float64) error {
	for _, cart := range t.state.carts {
		if cart.ID == cartID {
			cart.TotalPrice = total
		}
	}
	return nil
}

func (t *memTx) GetAddress(_ context.Context, id int64) (*domain.Address, error) {
	a, ok := t.state.addresses[id]
	if !ok {
		return nil, repository.ErrAddressNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) SaveProduct(_ context.Context, product *domain.Product) error {
	if _, ok := t.state.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	product.RecalculateSpecialPrice()
	cp := *product
	t.state.products[product.ID] = &cp
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	if err := t.store.injected("DecrementStock"); err != nil {
		return err
	}
	p, ok := t.state.products[productID]
	if !ok || p.Quantity < quantity {
		return repository.ErrInsufficientStock
	}
	p.Quantity -= quantity
	return nil
}

func (t *memTx) CreatePayment(_ context.Context, payment *domain.Payment) error {
	if err := t.store.injected("CreatePayment"); err != nil {
		return err
	}
	payment.CreatedAt = t.state.tick()
	cp := *payment
	t.state.payments[payment.ID] = &cp
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, order *domain.Order) error {
	if err := t.store.injected("CreateOrder"); err != nil {
		return err
	}
	if order.IdempotencyKey != nil {
		for _, o := range t.state.orders {
			if o.Email == order.Email && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return repository.ErrDuplicateIdempotencyKey
			}
		}
	}
	cp := copyOrder(order)
	cp.Items = nil
	t.state.orders[order.ID] = cp
	return nil
}

func (t *memTx) CreateOrderItems(_ context.Context, items []domain.OrderItem) error {
	if err := t.store.injected("CreateOrderItems"); err != nil {
		return err
	}
	for _, item := range items {
		o, ok := t.state.orders[item.OrderID]
		if !ok {
			return errors.New("order_items: foreign key violation")
		}
		item.ID = t.state.id()
		o.Items = append(o.Items, item)
	}
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if !o.Status.IsValid() {
		return nil, errors.Wrapf(domain.ErrUnknownStatus, "stored value %q", string(o.Status))
	}
	cp := copyOrder(o)
	if p, ok := t.state.payments[o.PaymentID]; ok {
		pp := *p
		cp.Payment = &pp
	}
	return cp, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if err := t.store.injected("GetOrderForUpdate"); err != nil {
		return nil, err
	}
	o, err := t.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = nil
	o.Payment = nil
	return o, nil
}

func (t *memTx) GetOrderByIdempotencyKey(ctx context.Context, email, key string) (*domain.Order, error) {
	for _, o := range t.state.orders {
		if o.Email == email && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return t.GetOrder(ctx, o.ID)
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if err := t.store.injected("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := t.state.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = t.state.tick()
	return nil
}

func (t *memTx) ListOrdersByStatus(_ context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range t.state.orders {
		if o.Status == status {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

func (t *memTx) AppendHistory(_ context.Context, entry *domain.StatusHistory) error {
	if err := t.store.injected("AppendHistory"); err != nil {
		return err
	}
	entry.ID = t.state.id()
	entry.CreatedAt = t.state.tick()
	t.state.history = append(t.state.history, *entry)
	return nil
}

func (t *memTx) ListHistory(_ context.Context, orderID uuid.UUID) ([]domain.StatusHistory, error) {
	out := make([]domain.StatusHistory, 0)
	for i := len(t.state.history) - 1; i >= 0; i-- {
		if t.state.history[i].OrderID == orderID {
			out = append(out, t.state.history[i])
		}
	}
	return out, nil
}

func (t *memTx) InsertAudit(_ context.Context, entry *domain.AuditEntry) error {
	if err := t.store.injected("InsertAudit"); err != nil {
		return err
	}
	entry.ID = t.state.id()
	entry.CreatedAt = t.state.tick()
	t.state.audits = append(t.state.audits, *entry)
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, event *domain.OutboxEvent) error {
	if err := t.store.injected("EnqueueEvent"); err != nil {
		return err
	}
	event.ID = t.state.id()
	event.CreatedAt = t.state.tick()
	t.state.outbox = append(t.state.outbox, *event)
	return nil
}

// notifications decodes the committed outbox in insertion order.
func (m *memStore) notifications() []notifier.Notification {
	events := m.snapshot().outbox
	out := make([]notifier.Notification, 0, len(events))
	for _, e := range events {
		var n notifier.Notification
		if err := json.Unmarshal(e.Payload, &n); err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

// countingWaker counts post-commit wakeups of the outbox poller.
type countingWaker struct {
	n atomic.Int32
}

func (w *countingWaker) Wake() { w.n.Add(1) }

func (w *countingWaker) count() int { return int(w.n.Load()) }

// mockCache is an in-memory tracking cache that counts calls.
type mockCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.OrderTracking
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[uuid.UUID]*domain.OrderTracking{}}
}

func (m *mockCache) Get(_ context.Context, id uuid.UUID) (*domain.OrderTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.entries[id]; ok {
		return t, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *mockCache) Set(_ context.Context, t *domain.OrderTracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[t.OrderID] = t
	return nil
}

func (m *mockCache) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	m.deletes++
	return nil
}

func (m *mockCache) has(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

// gatedCache blocks the selected calls until release is closed.
type gatedCache struct {
	*mockCache
	gateGet bool
	gateSet bool

	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	getCtx []error
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		mockCache: newMockCache(),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *gatedCache) wait() {
	g.once.Do(func() { close(g.started) })
	<-g.release
}

func (g *gatedCache) Get(ctx context.Context, id uuid.UUID) (*domain.OrderTracking, error) {
	if g.gateGet {
		g.wait()
		g.mu.Lock()
		g.getCtx = append(g.getCtx, ctx.Err())
		g.mu.Unlock()
	}
	return g.mockCache.Get(ctx, id)
}

func (g *gatedCache) Set(ctx context.Context, t *domain.OrderTracking) error {
	if g.gateSet {
		g.wait()
	}
	return g.mockCache.Set(ctx, t)
}

// loadErrs returns ctx.Err() as seen by each gated Get.
func (g *gatedCache) loadErrs() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error(nil), g.getCtx...)
}
