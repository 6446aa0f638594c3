package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return "stub repository error"
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound    = stubRepoError{msg: "not found", notFound: true}
	errStubConflict    = stubRepoError{msg: "conflict", conflict: true}
	errStubUnavailable = stubRepoError{msg: "unavailable", unavailable: true}
)

type stubServiceRepo struct {
	mu       sync.Mutex
	services map[string]domain.Service
	findErr  error
}

func newStubServiceRepo(services ...domain.Service) *stubServiceRepo {
	repo := &stubServiceRepo{services: make(map[string]domain.Service)}
	for _, svc := range services {
		repo.services[svc.ID] = svc
	}
	return repo
}

func (r *stubServiceRepo) Insert(_ context.Context, service domain.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[service.ID]; exists {
		return errStubConflict
	}
	r.services[service.ID] = service
	return nil
}

func (r *stubServiceRepo) Update(_ context.Context, service domain.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[service.ID]; !exists {
		return errStubNotFound
	}
	r.services[service.ID] = service
	return nil
}

func (r *stubServiceRepo) Delete(_ context.Context, serviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[serviceID]; !exists {
		return errStubNotFound
	}
	delete(r.services, serviceID)
	return nil
}

func (r *stubServiceRepo) FindByID(_ context.Context, serviceID string) (domain.Service, error) {
	if r.findErr != nil {
		return domain.Service{}, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[serviceID]
	if !ok {
		return domain.Service{}, errStubNotFound
	}
	return svc, nil
}

func (r *stubServiceRepo) List(_ context.Context, filter repositories.ServiceListFilter) ([]domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var listed []domain.Service
	for _, svc := range r.services {
		if filter.ActiveOnly && !svc.Active {
			continue
		}
		if filter.Type != "" && svc.Type != filter.Type {
			continue
		}
		listed = append(listed, svc)
	}
	return listed, nil
}

type stubProviderRepo struct {
	mu        sync.Mutex
	providers map[string]domain.Provider
}

func newStubProviderRepo(providers ...domain.Provider) *stubProviderRepo {
	repo := &stubProviderRepo{providers: make(map[string]domain.Provider)}
	for _, p := range providers {
		repo.providers[p.ID] = p
	}
	return repo
}

func (r *stubProviderRepo) Insert(_ context.Context, provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[provider.ID]; exists {
		return errStubConflict
	}
	r.providers[provider.ID] = provider
	return nil
}

func (r *stubProviderRepo) Update(_ context.Context, provider domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[provider.ID]; !exists {
		return errStubNotFound
	}
	r.providers[provider.ID] = provider
	return nil
}

func (r *stubProviderRepo) Delete(_ context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[providerID]; !exists {
		return errStubNotFound
	}
	delete(r.providers, providerID)
	return nil
}

func (r *stubProviderRepo) FindByID(_ context.Context, providerID string) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return domain.Provider{}, errStubNotFound
	}
	return p, nil
}

func (r *stubProviderRepo) List(_ context.Context, filter repositories.ProviderListFilter) ([]domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var listed []domain.Provider
	for _, p := range r.providers {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		listed = append(listed, p)
	}
	return listed, nil
}

type stubCartRepo struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	saveErr error
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{carts: make(map[string]domain.Cart)}
}

func (r *stubCartRepo) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, errStubNotFound
	}
	return cart, nil
}

func (r *stubCartRepo) Save(_ context.Context, cart domain.Cart, _ *time.Time) (domain.Cart, error) {
	if r.saveErr != nil {
		return domain.Cart{}, r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[cart.UserID] = cart
	return cart, nil
}

func (r *stubCartRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

type stubOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	insertErr error
	updateErr error
	listErr   error
	inserted  []string
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *stubOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return errStubConflict
	}
	r.orders[order.ID] = order
	r.inserted = append(r.inserted, order.ID)
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order, _ *time.Time) (domain.Order, error) {
	if r.updateErr != nil {
		return domain.Order{}, r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; !exists {
		return domain.Order{}, errStubNotFound
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errStubNotFound
	}
	return order, nil
}

func (r *stubOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if r.listErr != nil {
		return repositories.OrderPage{}, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	page := repositories.OrderPage{}
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		page.Orders = append(page.Orders, order)
	}
	return page, nil
}

type stubCounterRepo struct {
	mu   sync.Mutex
	next int64
}

func (r *stubCounterRepo) Next(_ context.Context, _ string, step int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if step <= 0 {
		step = 1
	}
	r.next += step
	return r.next, nil
}

type stubReservationRepo struct {
	mu       sync.Mutex
	bySlot   map[string]domain.Reservation
	byOrder  map[string]domain.Reservation
	sequence int
}

func newStubReservationRepo() *stubReservationRepo {
	return &stubReservationRepo{
		bySlot:  make(map[string]domain.Reservation),
		byOrder: make(map[string]domain.Reservation),
	}
}

func (r *stubReservationRepo) Reserve(_ context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s_%s_%s-%s", reservation.ProviderID, reservation.ScheduledDate, reservation.TimeSlot.Start, reservation.TimeSlot.End)
	if existing, ok := r.bySlot[key]; ok && existing.Status == domain.ReservationStatusHeld {
		return domain.Reservation{}, errStubConflict
	}
	r.sequence++
	reservation.ID = fmt.Sprintf("res_%d", r.sequence)
	reservation.Status = domain.ReservationStatusHeld
	r.bySlot[key] = reservation
	r.byOrder[reservation.OrderID] = reservation
	return reservation, nil
}

func (r *stubReservationRepo) setStatus(reservationID string, status domain.ReservationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, res := range r.bySlot {
		if res.ID == reservationID {
			res.Status = status
			r.bySlot[key] = res
			r.byOrder[res.OrderID] = res
			return nil
		}
	}
	return errStubNotFound
}

func (r *stubReservationRepo) Commit(_ context.Context, reservationID string) error {
	return r.setStatus(reservationID, domain.ReservationStatusCommitted)
}

func (r *stubReservationRepo) Release(_ context.Context, reservationID string) error {
	return r.setStatus(reservationID, domain.ReservationStatusReleased)
}

func (r *stubReservationRepo) FindByOrder(_ context.Context, orderID string) (domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byOrder[orderID]
	if !ok {
		return domain.Reservation{}, errStubNotFound
	}
	return res, nil
}

func (r *stubReservationRepo) statusForOrder(orderID string) domain.ReservationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byOrder[orderID].Status
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	repo := &stubUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *stubUserRepo) Upsert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, errStubNotFound
	}
	return user, nil
}

func (r *stubUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listed := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		listed = append(listed, u)
	}
	return listed, nil
}

func (r *stubUserRepo) SetActive(_ context.Context, userID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return errStubNotFound
	}
	user.Active = active
	r.users[userID] = user
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

type stubNotifier struct {
	mu       sync.Mutex
	receipts []PaymentReceiptNotification
	statuses []OrderStatusNotification
}

func (n *stubNotifier) SendPaymentReceipt(_ context.Context, receipt PaymentReceiptNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, receipt)
}

func (n *stubNotifier) SendOrderStatusUpdate(_ context.Context, status OrderStatusNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
}

// stubPaymentManager simulates the provider boundary one callback at a time.
type stubPaymentManager struct {
	mu           sync.Mutex
	createCalls  int
	created      []payments.CreateOrderRequest
	createResult payments.ProviderOrder
	createErr    error
	captureErr   error
	chargeErr    error
	chargeResult payments.PaymentDetails
	// referenceByProviderOrder backs Capture and Lookup resolution.
	referenceByProviderOrder map[string]string
}

func newStubPaymentManager() *stubPaymentManager {
	return &stubPaymentManager{referenceByProviderOrder: make(map[string]string)}
}

func (m *stubPaymentManager) CreateOrder(_ context.Context, _ payments.PaymentContext, req payments.CreateOrderRequest) (payments.ProviderOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return payments.ProviderOrder{}, m.createErr
	}
	m.createCalls++
	m.created = append(m.created, req)
	order := m.createResult
	if order.ID == "" {
		order.ID = fmt.Sprintf("PP-%d", m.createCalls)
	}
	order.Status = payments.StatusCreated
	m.referenceByProviderOrder[order.ID] = req.ReferenceID
	return order, nil
}

func (m *stubPaymentManager) Capture(_ context.Context, _ payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reference := m.referenceByProviderOrder[req.ProviderOrderID]
	if m.captureErr != nil {
		return payments.PaymentDetails{ReferenceID: reference}, m.captureErr
	}
	return payments.PaymentDetails{
		Provider:      "paypal",
		TransactionID: "CAP-" + req.ProviderOrderID,
		ReferenceID:   reference,
		Status:        payments.StatusCompleted,
		Amount:        30,
		Currency:      "EUR",
	}, nil
}

func (m *stubPaymentManager) Charge(_ context.Context, _ payments.PaymentContext, req payments.ChargeRequest) (payments.PaymentDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chargeErr != nil {
		return payments.PaymentDetails{}, m.chargeErr
	}
	result := m.chargeResult
	if result.TransactionID == "" {
		result.TransactionID = "card_txn_1"
	}
	result.Provider = "card"
	result.ReferenceID = req.ReferenceID
	result.Status = payments.StatusCompleted
	result.Amount = req.Amount
	result.Currency = strings.ToUpper(req.Currency)
	return result, nil
}

func (m *stubPaymentManager) Lookup(_ context.Context, _ payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reference, ok := m.referenceByProviderOrder[req.ProviderOrderID]
	if !ok {
		return payments.PaymentDetails{}, fmt.Errorf("lookup: unknown provider order %s", req.ProviderOrderID)
	}
	return payments.PaymentDetails{ReferenceID: reference, Status: payments.StatusCreated}, nil
}

// stubSchedule satisfies ScheduleService for order service tests.
type stubSchedule struct {
	mu        sync.Mutex
	held      []HoldSlotCommand
	committed []string
	released  []string
	holdErr   error
}

func (s *stubSchedule) Hold(_ context.Context, cmd HoldSlotCommand) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdErr != nil {
		return Reservation{}, s.holdErr
	}
	s.held = append(s.held, cmd)
	return Reservation{ID: "res_stub", OrderID: cmd.OrderID}, nil
}

func (s *stubSchedule) CommitForOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, orderID)
	return nil
}

func (s *stubSchedule) ReleaseForOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, orderID)
	return nil
}
