package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"agendafacil/internal/models"
	"agendafacil/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory database. RunInTx holds mu for the whole
// transaction, standing in for the row locks.
type fakeStore struct {
	mu                   sync.Mutex
	movements            map[uuid.UUID]*models.PaymentMovement
	orders               map[uuid.UUID]*models.Order
	comandas             map[uuid.UUID]*models.Comanda
	subscriptionPayments map[uuid.UUID]*models.SubscriptionPayment
	tenants              map[uuid.UUID]*models.Tenant
	credentials          map[uuid.UUID]*models.PaymentCredential
	failUpdates          error
	clock                func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		movements:            make(map[uuid.UUID]*models.PaymentMovement),
		orders:               make(map[uuid.UUID]*models.Order),
		comandas:             make(map[uuid.UUID]*models.Comanda),
		subscriptionPayments: make(map[uuid.UUID]*models.SubscriptionPayment),
		tenants:              make(map[uuid.UUID]*models.Tenant),
		credentials:          make(map[uuid.UUID]*models.PaymentCredential),
		clock:                time.Now,
	}
}

// lastChecked mirrors COALESCE(last_checked_at, updated_at).
func lastChecked(checkedAt *time.Time, updatedAt time.Time) time.Time {
	if checkedAt != nil {
		return *checkedAt
	}
	return updatedAt
}

func (s *fakeStore) addTenant(token string) *models.Tenant {
	t := &models.Tenant{ID: uuid.New(), BusinessName: "Loja"}
	s.tenants[t.ID] = t
	if token != "" {
		s.credentials[t.ID] = &models.PaymentCredential{ID: uuid.New(), TenantID: t.ID, AccessToken: token, Active: true}
	}
	return t
}

func (s *fakeStore) addOrder(tenantID uuid.UUID, status models.OrderStatus) *models.Order {
	o := &models.Order{ID: uuid.New(), TenantID: tenantID, Total: decimal.NewFromInt(50), Status: status}
	s.orders[o.ID] = o
	return o
}

func (s *fakeStore) addMovement(order *models.Order, externalID string) *models.PaymentMovement {
	id := externalID
	m := &models.PaymentMovement{
		ID:          uuid.New(),
		OrderID:     order.ID,
		TenantID:    order.TenantID,
		MPPaymentID: &id,
		Amount:      order.Total,
		Status:      models.PaymentCreated,
	}
	s.movements[m.ID] = m
	return m
}

func (s *fakeStore) addSubscriptionPayment(tenantID uuid.UUID, externalID string) *models.SubscriptionPayment {
	p := &models.SubscriptionPayment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		MPPaymentID: externalID,
		Amount:      decimal.NewFromInt(39),
		Status:      models.PaymentPending,
	}
	s.subscriptionPayments[p.ID] = p
	return p
}

func (s *fakeStore) comandaCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comandas)
}

func (s *fakeStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *fakeStore) movement(id uuid.UUID) models.PaymentMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.movements[id]
}

func (s *fakeStore) tenant(id uuid.UUID) models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tenants[id]
}

func (s *fakeStore) subscriptionPayment(id uuid.UUID) models.SubscriptionPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.subscriptionPayments[id]
}

// guard takes the store lock unless already inside a transaction.
func (s *fakeStore) guard(inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type fakeOrderRepo struct {
	store *fakeStore
	inTx  bool
}

func (r *fakeOrderRepo) RunInTx(ctx context.Context, fn func(repo repositories.OrderRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(&fakeOrderRepo{store: r.store, inTx: true})
}

func (r *fakeOrderRepo) GetMovementByExternalID(ctx context.Context, externalID string) (*models.PaymentMovement, error) {
	defer r.store.guard(r.inTx)()
	for _, m := range r.store.movements {
		if m.MPPaymentID != nil && *m.MPPaymentID == externalID {
			c := *m
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeOrderRepo) LockMovement(ctx context.Context, id uuid.UUID) (*models.PaymentMovement, error) {
	defer r.store.guard(r.inTx)()
	m, ok := r.store.movements[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (r *fakeOrderRepo) UpdateMovement(ctx context.Context, id uuid.UUID, status models.PaymentStatus, payload json.RawMessage, needsReview bool) error {
	defer r.store.guard(r.inTx)()
	if r.store.failUpdates != nil {
		return r.store.failUpdates
	}
	m := r.store.movements[id]
	m.Status = status
	m.Payload = payload
	m.NeedsReview = needsReview
	now := r.store.clock()
	m.UpdatedAt = now
	m.LastCheckedAt = &now
	return nil
}

func (r *fakeOrderRepo) MarkMovementChecked(ctx context.Context, id uuid.UUID) error {
	defer r.store.guard(r.inTx)()
	if r.store.failUpdates != nil {
		return r.store.failUpdates
	}
	now := r.store.clock()
	r.store.movements[id].LastCheckedAt = &now
	return nil
}

func (r *fakeOrderRepo) HasOtherApprovedMovement(ctx context.Context, orderID, movementID uuid.UUID) (bool, error) {
	defer r.store.guard(r.inTx)()
	for _, m := range r.store.movements {
		if m.OrderID == orderID && m.ID != movementID && m.Status == models.PaymentApproved {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrderRepo) ListStaleMovements(ctx context.Context, before time.Time, limit int) ([]*models.PaymentMovement, error) {
	defer r.store.guard(r.inTx)()
	var stale []*models.PaymentMovement
	for _, m := range r.store.movements {
		if m.MPPaymentID == nil || (m.Status != models.PaymentCreated && m.Status != models.PaymentPending) {
			continue
		}
		if lastChecked(m.LastCheckedAt, m.UpdatedAt).Before(before) {
			c := *m
			stale = append(stale, &c)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return lastChecked(stale[i].LastCheckedAt, stale[i].UpdatedAt).Before(lastChecked(stale[j].LastCheckedAt, stale[j].UpdatedAt))
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *fakeOrderRepo) ListMovementsNeedingReview(ctx context.Context, limit, offset int) ([]*models.PaymentMovement, error) {
	return nil, nil
}

func (r *fakeOrderRepo) LockOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	defer r.store.guard(r.inTx)()
	o, ok := r.store.orders[orderID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *o
	return &c, nil
}

// TransitionOrder mirrors the guarded UPDATE in the real repository.
func (r *fakeOrderRepo) TransitionOrder(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (bool, error) {
	defer r.store.guard(r.inTx)()
	o := r.store.orders[orderID]
	if o.Status == models.OrderPaid || o.Status == status {
		return false, nil
	}
	if o.Status == models.OrderCancelled && status != models.OrderPaid {
		return false, nil
	}
	o.Status = status
	return true, nil
}

func (r *fakeOrderRepo) CreateComanda(ctx context.Context, comanda *models.Comanda) (bool, error) {
	defer r.store.guard(r.inTx)()
	if _, exists := r.store.comandas[comanda.OrderID]; exists {
		return false, nil
	}
	c := *comanda
	r.store.comandas[comanda.OrderID] = &c
	return true, nil
}

type fakeSubscriptionRepo struct {
	store *fakeStore
	inTx  bool
}

func (r *fakeSubscriptionRepo) RunInTx(ctx context.Context, fn func(repo repositories.SubscriptionRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(&fakeSubscriptionRepo{store: r.store, inTx: true})
}

func (r *fakeSubscriptionRepo) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.SubscriptionPayment, error) {
	defer r.store.guard(r.inTx)()
	for _, p := range r.store.subscriptionPayments {
		if p.MPPaymentID == externalID {
			c := *p
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeSubscriptionRepo) LockPayment(ctx context.Context, id uuid.UUID) (*models.SubscriptionPayment, error) {
	defer r.store.guard(r.inTx)()
	p, ok := r.store.subscriptionPayments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *fakeSubscriptionRepo) UpdatePayment(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paidAt *time.Time, needsReview bool) error {
	defer r.store.guard(r.inTx)()
	if r.store.failUpdates != nil {
		return r.store.failUpdates
	}
	p := r.store.subscriptionPayments[id]
	p.Status = status
	if paidAt != nil {
		t := *paidAt
		p.PaidAt = &t
	}
	p.NeedsReview = needsReview
	now := r.store.clock()
	p.UpdatedAt = now
	p.LastCheckedAt = &now
	return nil
}

func (r *fakeSubscriptionRepo) MarkPaymentChecked(ctx context.Context, id uuid.UUID) error {
	defer r.store.guard(r.inTx)()
	if r.store.failUpdates != nil {
		return r.store.failUpdates
	}
	now := r.store.clock()
	r.store.subscriptionPayments[id].LastCheckedAt = &now
	return nil
}

func (r *fakeSubscriptionRepo) ListStalePayments(ctx context.Context, before time.Time, limit int) ([]*models.SubscriptionPayment, error) {
	defer r.store.guard(r.inTx)()
	var stale []*models.SubscriptionPayment
	for _, p := range r.store.subscriptionPayments {
		if p.MPPaymentID == "" || (p.Status != models.PaymentCreated && p.Status != models.PaymentPending) {
			continue
		}
		if lastChecked(p.LastCheckedAt, p.UpdatedAt).Before(before) {
			c := *p
			stale = append(stale, &c)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return lastChecked(stale[i].LastCheckedAt, stale[i].UpdatedAt).Before(lastChecked(stale[j].LastCheckedAt, stale[j].UpdatedAt))
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *fakeSubscriptionRepo) ListPaymentsNeedingReview(ctx context.Context, limit, offset int) ([]*models.SubscriptionPayment, error) {
	return nil, nil
}

func (r *fakeSubscriptionRepo) LockTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	defer r.store.guard(r.inTx)()
	t, ok := r.store.tenants[tenantID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *t
	return &c, nil
}

// ExtendWindow mirrors the GREATEST guard in the real repository.
func (r *fakeSubscriptionRepo) ExtendWindow(ctx context.Context, tenant *models.Tenant) error {
	defer r.store.guard(r.inTx)()
	t := r.store.tenants[tenant.ID]
	t.SubscriptionActive = tenant.SubscriptionActive
	t.SubscriptionPlan = tenant.SubscriptionPlan
	t.SubscriptionAmount = tenant.SubscriptionAmount
	if t.SubscriptionValidUntil == nil || tenant.SubscriptionValidUntil.After(*t.SubscriptionValidUntil) {
		v := *tenant.SubscriptionValidUntil
		t.SubscriptionValidUntil = &v
	}
	return nil
}

func (r *fakeSubscriptionRepo) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeCredentialRepo struct {
	store *fakeStore
}

func (r *fakeCredentialRepo) GetActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*models.PaymentCredential, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.credentials[tenantID]
	if !ok || !c.Active {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	sent []*models.PushNotification
	err  error
}

func (n *fakeNotifications) Enqueue(ctx context.Context, notification *models.PushNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifications) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// fakeGateway serves payments per external id and records the token each
// lookup used.
type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*models.GatewayPayment
	err      error
	calls    []string
	tokens   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]*models.GatewayPayment)}
}

func (g *fakeGateway) set(externalID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[externalID] = &models.GatewayPayment{
		ID:                externalID,
		Status:            status,
		TransactionAmount: decimal.NewFromInt(39),
		Raw:               json.RawMessage(`{"id":` + externalID + `,"status":"` + status + `"}`),
	}
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) ForCredential(cred *models.PaymentCredential) PaymentFetcher {
	return &fakeFetcher{gateway: g, token: cred.AccessToken}
}

type fakeFetcher struct {
	gateway *fakeGateway
	token   string
}

func (f *fakeFetcher) GetPayment(ctx context.Context, externalID string) (*models.GatewayPayment, error) {
	g := f.gateway
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, externalID)
	g.tokens = append(g.tokens, f.token)
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[externalID]
	if !ok {
		return nil, ErrGatewayPaymentNotFound
	}
	c := *p
	return &c, nil
}

type fakeLock struct {
	held bool
	err  error
}

func (l fakeLock) Acquire(ctx context.Context, externalID string) (func(), bool, error) {
	if l.err != nil {
		return func() {}, false, l.err
	}
	return func() {}, !l.held, nil
}

type fakeArchive struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func (a *fakeArchive) Store(ctx context.Context, externalID string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.stored == nil {
		a.stored = make(map[string][]byte)
	}
	key := ArchiveObjectName(time.Now(), externalID)
	a.stored[key] = body
	return key, nil
}

func (a *fakeArchive) EnsureBucketExists(ctx context.Context) error { return nil }

func (a *fakeArchive) Ping(ctx context.Context) error { return a.err }

var errStorage = errors.New("connection reset by peer")
