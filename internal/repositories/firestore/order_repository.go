package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/tidynest/api/internal/domain"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
	"github.com/tidynest/api/internal/platform/pagination"
	"github.com/tidynest/api/internal/repositories"
)

const ordersCollection = "orders"

type orderOptionDocument struct {
	OptionID string `firestore:"optionId"`
	Name     string `firestore:"name"`
	Price    string `firestore:"price"`
	Quantity int    `firestore:"quantity"`
}

type orderPaymentDocument struct {
	TransactionID string         `firestore:"transactionId"`
	Provider      string         `firestore:"provider,omitempty"`
	Status        string         `firestore:"status"`
	Amount        float64        `firestore:"amount"`
	Currency      string         `firestore:"currency,omitempty"`
	Raw           map[string]any `firestore:"raw,omitempty"`
	RecordedAt    time.Time      `firestore:"recordedAt"`
}

type orderDocument struct {
	Number        string                 `firestore:"number"`
	UserID        string                 `firestore:"userId"`
	ServiceID     string                 `firestore:"serviceId"`
	ServiceName   string                 `firestore:"serviceName,omitempty"`
	ProviderID    string                 `firestore:"providerId,omitempty"`
	Options       []orderOptionDocument  `firestore:"options"`
	TotalAmount   float64                `firestore:"totalAmount"`
	Tax           float64                `firestore:"tax"`
	GrandTotal    float64                `firestore:"grandTotal"`
	Currency      string                 `firestore:"currency,omitempty"`
	Address       cartAddressDocument    `firestore:"address"`
	ScheduledDate string                 `firestore:"scheduledDate"`
	TimeSlot      cartTimeSlotDocument   `firestore:"timeSlot"`
	Status        string                 `firestore:"status"`
	PaymentStatus string                 `firestore:"paymentStatus"`
	PaymentMethod string                 `firestore:"paymentMethod"`
	Payments      []orderPaymentDocument `firestore:"payments,omitempty"`
	CancelReason  string                 `firestore:"cancelReason,omitempty"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

// OrderRepository persists durable order records in Firestore.
type OrderRepository struct {
	base *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document. Fails with a conflict when the id exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document, optionally guarded by the last update timestamp.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := encodeOrder(order)

	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		updates := []firestore.Update{
			{Path: "status", Value: doc.Status},
			{Path: "paymentStatus", Value: doc.PaymentStatus},
			{Path: "payments", Value: doc.Payments},
			{Path: "cancelReason", Value: doc.CancelReason},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err := r.base.Update(ctx, id, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
		if err != nil {
			return domain.Order{}, err
		}
		saved := order
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Order{}, err
	}
	saved := order
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data, doc.UpdateTime), nil
}

// List returns a page of orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (repositories.OrderPage, error) {
	if r == nil || r.base == nil {
		return repositories.OrderPage{}, errors.New("order repository not initialised")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.StartAfter); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return repositories.OrderPage{}, err
		}
		startAfter, err = orderCursorValues(cursor)
		if err != nil {
			return repositories.OrderPage{}, err
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	page := repositories.OrderPage{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[i-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return repositories.OrderPage{}, err
			}
			page.NextCursor = token
			break
		}
		page.Orders = append(page.Orders, decodeOrder(doc.ID, doc.Data, doc.UpdateTime))
	}
	return page, nil
}

// orderCursorValues turns a decoded page token back into the Firestore
// StartAfter tuple matching the createdAt+documentID ordering.
func orderCursorValues(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawCreated, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor timestamp must be a string", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: cursor document id missing", pagination.ErrInvalidPageToken)
	}
	return []any{createdAt, docID}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	options := make([]orderOptionDocument, 0, len(order.Options))
	for _, sel := range order.Options {
		options = append(options, orderOptionDocument{
			OptionID: sel.OptionID,
			Name:     sel.Name,
			Price:    sel.Price,
			Quantity: sel.Quantity,
		})
	}
	payments := make([]orderPaymentDocument, 0, len(order.Payments))
	for _, p := range order.Payments {
		payments = append(payments, orderPaymentDocument{
			TransactionID: p.TransactionID,
			Provider:      p.Provider,
			Status:        string(p.Status),
			Amount:        p.Amount,
			Currency:      p.Currency,
			Raw:           p.Raw,
			RecordedAt:    p.RecordedAt.UTC(),
		})
	}
	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := order.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return orderDocument{
		Number:      strings.TrimSpace(order.Number),
		UserID:      strings.TrimSpace(order.UserID),
		ServiceID:   strings.TrimSpace(order.ServiceID),
		ServiceName: strings.TrimSpace(order.ServiceName),
		ProviderID:  strings.TrimSpace(order.ProviderID),
		Options:     options,
		TotalAmount: order.TotalAmount,
		Tax:         order.Tax,
		GrandTotal:  order.GrandTotal,
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Address: cartAddressDocument{
			Street:       order.Address.Street,
			City:         order.Address.City,
			ZipCode:      order.Address.ZipCode,
			Country:      order.Address.Country,
			Instructions: order.Address.Instructions,
		},
		ScheduledDate: strings.TrimSpace(order.ScheduledDate),
		TimeSlot:      cartTimeSlotDocument{Start: order.TimeSlot.Start, End: order.TimeSlot.End},
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Payments:      payments,
		CancelReason:  strings.TrimSpace(order.CancelReason),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

func decodeOrder(id string, doc orderDocument, updateTime time.Time) domain.Order {
	options := make([]domain.OptionSelection, 0, len(doc.Options))
	for _, opt := range doc.Options {
		options = append(options, domain.OptionSelection{
			OptionID: opt.OptionID,
			Name:     opt.Name,
			Price:    opt.Price,
			Quantity: opt.Quantity,
		})
	}
	payments := make([]domain.PaymentRecord, 0, len(doc.Payments))
	for _, p := range doc.Payments {
		payments = append(payments, domain.PaymentRecord{
			TransactionID: p.TransactionID,
			Provider:      p.Provider,
			Status:        domain.PaymentStatus(p.Status),
			Amount:        p.Amount,
			Currency:      p.Currency,
			Raw:           p.Raw,
			RecordedAt:    p.RecordedAt,
		})
	}
	return domain.Order{
		ID:          id,
		Number:      doc.Number,
		UserID:      doc.UserID,
		ServiceID:   doc.ServiceID,
		ServiceName: doc.ServiceName,
		ProviderID:  doc.ProviderID,
		Options:     options,
		TotalAmount: doc.TotalAmount,
		Tax:         doc.Tax,
		GrandTotal:  doc.GrandTotal,
		Currency:    doc.Currency,
		Address: domain.Address{
			Street:       doc.Address.Street,
			City:         doc.Address.City,
			ZipCode:      doc.Address.ZipCode,
			Country:      doc.Address.Country,
			Instructions: doc.Address.Instructions,
		},
		ScheduledDate: doc.ScheduledDate,
		TimeSlot:      domain.TimeSlot{Start: doc.TimeSlot.Start, End: doc.TimeSlot.End},
		Status:        domain.OrderStatus(doc.Status),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Payments:      payments,
		CancelReason:  doc.CancelReason,
		CreatedAt:     doc.CreatedAt,
		// The LastUpdateTime precondition on Update compares against the
		// server commit timestamp, so that is what UpdatedAt must carry.
		UpdatedAt: func() time.Time {
			if !updateTime.IsZero() {
				return updateTime
			}
			return doc.UpdatedAt
		}(),
	}
}
