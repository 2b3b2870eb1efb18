// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"sprout-payments/internal/domain"
	"sprout-payments/internal/domain/model"
	"sprout-payments/internal/domain/ports/adapter"
	"sprout-payments/internal/domain/ports/repository"
)

var (
	_ repository.OrderRepository        = (*mockOrderRepo)(nil)
	_ repository.SubscriptionRepository = (*mockSubscriptionRepo)(nil)
	_ repository.PurchaseRepository     = (*mockPurchaseRepo)(nil)
	_ repository.TransactionManager     = (mockTxManager{})
	_ adapter.RazorpayGateway           = (*fakeRazorpayGW)(nil)
	_ adapter.StripeGateway             = (*fakeStripeGW)(nil)
	_ Locker                            = (*fakeLocker)(nil)
	_ EventCache                        = (*fakeEventCache)(nil)
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- repositories ----

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order // keyed by provider order id
	errOn  string                  // method name to force an error from
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *mockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errOn == "Save" {
		return domain.ErrOperationFailed
	}
	cp := *o
	m.orders[o.ProviderOrderID] = &cp
	return nil
}

func (m *mockOrderRepo) FindByProviderOrderID(ctx context.Context, tx repository.Tx, providerOrderID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[providerOrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) MarkCompleted(ctx context.Context, tx repository.Tx, providerOrderID, paymentID, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[providerOrderID]
	if !ok || o.Status != model.OrderStatusCreated {
		return false, nil
	}
	o.Status = model.OrderStatusCompleted
	o.ProviderPaymentID = &paymentID
	o.ProviderSignature = &signature
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockOrderRepo) MarkFailed(ctx context.Context, tx repository.Tx, providerOrderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[providerOrderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status != model.OrderStatusCreated {
		return false, nil
	}
	o.Status = model.OrderStatusFailed
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockOrderRepo) ListStuckCreated(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.Status == model.OrderStatusCreated && o.CreatedAt.Before(olderThan) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOrderRepo) get(providerOrderID string) *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[providerOrderID]; ok {
		cp := *o
		return &cp
	}
	return nil
}

type mockSubscriptionRepo struct {
	mu      sync.Mutex
	byUser  map[string]*model.Subscription
	upserts int
}

func newMockSubscriptionRepo() *mockSubscriptionRepo {
	return &mockSubscriptionRepo{byUser: make(map[string]*model.Subscription)}
}

func (m *mockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	cp := *sub
	if prev, ok := m.byUser[sub.UserID]; ok {
		// keep the original row id and provider link, like the SQL upsert
		cp.ID = prev.ID
		if cp.ProviderSubscriptionID == nil {
			cp.ProviderSubscriptionID = prev.ProviderSubscriptionID
		}
	}
	m.byUser[sub.UserID] = &cp
	return nil
}

func (m *mockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSubscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.CancelAtPeriodEnd = true
	s.UpdatedAt = time.Now()
	return nil
}

func (m *mockSubscriptionRepo) SetProviderSubscriptionID(ctx context.Context, tx repository.Tx, userID, providerSubID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return domain.ErrNotFound
	}
	s.ProviderSubscriptionID = &providerSubID
	return nil
}

func (m *mockSubscriptionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

type mockPurchaseRepo struct {
	mu        sync.Mutex
	purchases []*model.AnalysisPurchase
	errOn     string // method name to force an error from
}

func newMockPurchaseRepo() *mockPurchaseRepo { return &mockPurchaseRepo{} }

func (m *mockPurchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.AnalysisPurchase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errOn == "Insert" {
		return false, domain.ErrOperationFailed
	}
	for _, existing := range m.purchases {
		if existing.ProviderPaymentIntentID == p.ProviderPaymentIntentID {
			return false, nil
		}
	}
	cp := *p
	m.purchases = append(m.purchases, &cp)
	return true, nil
}

func (m *mockPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.AnalysisPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AnalysisPurchase
	for _, p := range m.purchases {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPurchaseRepo) ConsumeOne(ctx context.Context, tx repository.Tx, userID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pick *model.AnalysisPurchase
	for _, p := range m.purchases {
		if p.UserID != userID || !p.ExpiresAt.After(now) || p.UsedCount >= p.Quantity {
			continue
		}
		if pick == nil || p.ExpiresAt.Before(pick.ExpiresAt) {
			pick = p
		}
	}
	if pick == nil {
		return false, nil
	}
	pick.UsedCount++
	return true, nil
}

func (m *mockPurchaseRepo) AvailableCredits(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, p := range m.purchases {
		if p.UserID == userID {
			total += p.Remaining(now)
		}
	}
	return total, nil
}

// ---- transaction manager ----

type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// ---- gateways ----

type fakeRazorpayGW struct {
	mu       sync.Mutex
	nextID   int
	failWith error  // CreateOrder returns this when set
	validSig string // the one signature VerifyPaymentSignature accepts
	notes    map[string]string
}

func newFakeRazorpayGW() *fakeRazorpayGW {
	return &fakeRazorpayGW{validSig: "sig-valid"}
}

func (f *fakeRazorpayGW) Name() string { return "razorpay" }

func (f *fakeRazorpayGW) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*adapter.ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nextID++
	f.notes = notes
	return &adapter.ProviderOrder{
		ID:       "order_test" + string(rune('0'+f.nextID)),
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (f *fakeRazorpayGW) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return signature == f.validSig
}

func (f *fakeRazorpayGW) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == f.validSig
}

type fakeStripeGW struct {
	mu          sync.Mutex
	customerID  string
	sessionURL  string
	cancelAt    int64
	cancelCalls []string
	event       *adapter.WebhookEvent
	verifyErr   error
}

func newFakeStripeGW() *fakeStripeGW {
	return &fakeStripeGW{
		customerID: "cus_test",
		sessionURL: "https://checkout.stripe.test/cs_test",
		cancelAt:   time.Now().AddDate(0, 1, 0).Unix(),
	}
}

func (f *fakeStripeGW) Name() string { return "stripe" }

func (f *fakeStripeGW) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	return f.customerID, nil
}

func (f *fakeStripeGW) CreateSubscriptionCheckout(ctx context.Context, customerID, userID, planID, planName string, amount int64, currency, interval string) (*adapter.CheckoutSession, error) {
	return &adapter.CheckoutSession{ID: "cs_sub_test", URL: f.sessionURL}, nil
}

func (f *fakeStripeGW) CreatePackCheckout(ctx context.Context, userID string, pack adapter.PackConfig) (*adapter.CheckoutSession, error) {
	return &adapter.CheckoutSession{ID: "cs_pack_test", URL: f.sessionURL}, nil
}

func (f *fakeStripeGW) CancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, providerSubscriptionID)
	return f.cancelAt, nil
}

func (f *fakeStripeGW) VerifyWebhook(body []byte, sigHeader string) (*adapter.WebhookEvent, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.event == nil {
		return nil, domain.ErrMalformedPayload
	}
	return f.event, nil
}

// ---- lock and event cache ----

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	fail bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("lock backend unavailable")
	}
	if _, ok := f.held[key]; ok {
		return "", errors.New("already locked")
	}
	f.held[key] = "tok"
	return "tok", nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}

type fakeEventCache struct {
	mu   sync.Mutex
	seen map[string]bool
	fail bool
}

func newFakeEventCache() *fakeEventCache { return &fakeEventCache{seen: make(map[string]bool)} }

func (f *fakeEventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errors.New("cache backend unavailable")
	}
	return f.seen[eventID], nil
}

func (f *fakeEventCache) MarkProcessed(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("cache backend unavailable")
	}
	f.seen[eventID] = true
	return nil
}
