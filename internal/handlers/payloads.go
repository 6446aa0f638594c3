package handlers

import (
	"strings"

	"github.com/tidynest/api/internal/services"
)

type addressPayload struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
	Instructions string `json:"instructions,omitempty"`
}

type timeSlotPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type serviceOptionPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
}

type servicePayload struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Type        string                 `json:"type,omitempty"`
	BasePrice   string                 `json:"basePrice,omitempty"`
	Options     []serviceOptionPayload `json:"options"`
	Active      bool                   `json:"active"`
}

type providerPayload struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	Type           string                       `json:"type"`
	Description    string                       `json:"description,omitempty"`
	Rating         float64                      `json:"rating"`
	Verified       bool                         `json:"verified"`
	Active         bool                         `json:"active"`
	PriceOverrides map[string]map[string]string `json:"priceOverrides,omitempty"`
}

type cartPayload struct {
	UserID          string           `json:"userId"`
	SelectedService *servicePayload  `json:"selectedService,omitempty"`
	SelectedOptions map[string]int   `json:"selectedOptions"`
	ProviderID      string           `json:"providerId,omitempty"`
	Address         *addressPayload  `json:"address,omitempty"`
	ScheduledDate   string           `json:"scheduledDate,omitempty"`
	TimeSlot        *timeSlotPayload `json:"timeSlot,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	UpdatedAt       string           `json:"updatedAt,omitempty"`
}

type totalsPayload struct {
	Total      float64 `json:"total"`
	Tax        float64 `json:"tax"`
	GrandTotal float64 `json:"grandTotal"`
}

type optionSelectionPayload struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

type paymentRecordPayload struct {
	TransactionID string  `json:"transactionId"`
	Provider      string  `json:"provider"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	RecordedAt    string  `json:"recordedAt"`
}

type orderPayload struct {
	ID            string                   `json:"id"`
	Number        string                   `json:"number"`
	UserID        string                   `json:"userId"`
	ServiceID     string                   `json:"serviceId"`
	ServiceName   string                   `json:"serviceName"`
	ProviderID    string                   `json:"providerId,omitempty"`
	Options       []optionSelectionPayload `json:"options"`
	TotalAmount   float64                  `json:"totalAmount"`
	Tax           float64                  `json:"tax"`
	GrandTotal    float64                  `json:"grandTotal"`
	Address       addressPayload           `json:"address"`
	ScheduledDate string                   `json:"scheduledDate"`
	TimeSlot      timeSlotPayload          `json:"timeSlot"`
	Status        string                   `json:"status"`
	PaymentStatus string                   `json:"paymentStatus"`
	PaymentMethod string                   `json:"paymentMethod"`
	Payments      []paymentRecordPayload   `json:"payments,omitempty"`
	CancelReason  string                   `json:"cancelReason,omitempty"`
	CreatedAt     string                   `json:"createdAt,omitempty"`
	UpdatedAt     string                   `json:"updatedAt,omitempty"`
}

func buildServicePayload(service services.Service) servicePayload {
	options := make([]serviceOptionPayload, 0, len(service.Options))
	for _, opt := range service.Options {
		options = append(options, serviceOptionPayload{
			ID:          opt.ID,
			Name:        opt.Name,
			Icon:        opt.Icon,
			Price:       opt.Price,
			Description: opt.Description,
		})
	}
	return servicePayload{
		ID:          service.ID,
		Name:        service.Name,
		Description: service.Description,
		Type:        service.Type,
		BasePrice:   service.BasePrice,
		Options:     options,
		Active:      service.Active,
	}
}

func buildProviderPayload(provider services.Provider) providerPayload {
	return providerPayload{
		ID:             provider.ID,
		Name:           provider.Name,
		Type:           string(provider.Type),
		Description:    provider.Description,
		Rating:         provider.Rating,
		Verified:       provider.Verified,
		Active:         provider.Active,
		PriceOverrides: provider.PriceOverrides,
	}
}

func buildAddressPayload(address services.Address) addressPayload {
	return addressPayload{
		Street:       address.Street,
		City:         address.City,
		ZipCode:      address.ZipCode,
		Country:      address.Country,
		Instructions: address.Instructions,
	}
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		UserID:          cart.UserID,
		SelectedOptions: cart.SelectedOptions,
		ProviderID:      cart.ProviderID,
		ScheduledDate:   cart.ScheduledDate,
		PaymentMethod:   string(cart.PaymentMethod),
		UpdatedAt:       formatTime(cart.UpdatedAt),
	}
	if payload.SelectedOptions == nil {
		payload.SelectedOptions = map[string]int{}
	}
	if cart.SelectedService != nil {
		service := buildServicePayload(*cart.SelectedService)
		payload.SelectedService = &service
	}
	if cart.Address != nil {
		address := buildAddressPayload(*cart.Address)
		payload.Address = &address
	}
	if cart.TimeSlot != nil {
		payload.TimeSlot = &timeSlotPayload{Start: cart.TimeSlot.Start, End: cart.TimeSlot.End}
	}
	return payload
}

func buildOrderPayload(order services.Order) orderPayload {
	options := make([]optionSelectionPayload, 0, len(order.Options))
	for _, sel := range order.Options {
		options = append(options, optionSelectionPayload{
			OptionID: sel.OptionID,
			Name:     sel.Name,
			Price:    sel.Price,
			Quantity: sel.Quantity,
		})
	}
	var records []paymentRecordPayload
	for _, record := range order.Payments {
		records = append(records, paymentRecordPayload{
			TransactionID: record.TransactionID,
			Provider:      record.Provider,
			Status:        string(record.Status),
			Amount:        record.Amount,
			Currency:      record.Currency,
			RecordedAt:    formatTime(record.RecordedAt),
		})
	}
	return orderPayload{
		ID:            order.ID,
		Number:        order.Number,
		UserID:        order.UserID,
		ServiceID:     order.ServiceID,
		ServiceName:   order.ServiceName,
		ProviderID:    order.ProviderID,
		Options:       options,
		TotalAmount:   order.TotalAmount,
		Tax:           order.Tax,
		GrandTotal:    order.GrandTotal,
		Address:       buildAddressPayload(order.Address),
		ScheduledDate: order.ScheduledDate,
		TimeSlot:      timeSlotPayload{Start: order.TimeSlot.Start, End: order.TimeSlot.End},
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Payments:      records,
		CancelReason:  order.CancelReason,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func trimmedQuery(value string) string {
	return strings.TrimSpace(value)
}
