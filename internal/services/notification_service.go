package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const notificationSendTimeout = 10 * time.Second

// mailSender abstracts the SendGrid client for testing.
type mailSender interface {
	Send(ctx context.Context, message *mail.SGMailV3) (int, error)
}

type sendGridSender struct {
	client *sendgrid.Client
}

func (s sendGridSender) Send(ctx context.Context, message *mail.SGMailV3) (int, error) {
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// NotificationServiceDeps wires the dependencies required by the notification service.
type NotificationServiceDeps struct {
	APIKey      string
	FromAddress string
	FromName    string
	Sender      mailSender
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// notificationService sends transactional mail through SendGrid. Sends are
// fire-and-forget: failures are logged and never surface to order flow.
type notificationService struct {
	sender      mailSender
	fromAddress string
	fromName    string
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewNotificationService constructs a NotificationService. Sender overrides
// the SendGrid client for tests.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	fromAddress := strings.TrimSpace(deps.FromAddress)
	if fromAddress == "" {
		return nil, errors.New("notification service: from address is required")
	}
	sender := deps.Sender
	if sender == nil {
		apiKey := strings.TrimSpace(deps.APIKey)
		if apiKey == "" {
			return nil, errors.New("notification service: sendgrid api key is required")
		}
		sender = sendGridSender{client: sendgrid.NewSendClient(apiKey)}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationService{
		sender:      sender,
		fromAddress: fromAddress,
		fromName:    strings.TrimSpace(deps.FromName),
		logger:      logger,
	}, nil
}

// SendPaymentReceipt emails the payment confirmation for a completed checkout.
func (s *notificationService) SendPaymentReceipt(ctx context.Context, n PaymentReceiptNotification) {
	if s == nil || s.sender == nil || strings.TrimSpace(n.Email) == "" {
		return
	}
	subject := fmt.Sprintf("Payment received for order %s", n.OrderNumber)
	plain := fmt.Sprintf(
		"Thank you for your booking.\n\nOrder %s (%s)\nTotal charged: %.2f %s\nTransaction: %s\n",
		n.OrderNumber, n.ServiceName, n.GrandTotal, n.Currency, n.TransactionID,
	)
	s.deliver(ctx, "notification.receipt", n.Email, subject, plain, map[string]any{
		"orderId": n.OrderID,
	})
}

// SendOrderStatusUpdate emails the customer when the order status changes.
func (s *notificationService) SendOrderStatusUpdate(ctx context.Context, n OrderStatusNotification) {
	if s == nil || s.sender == nil || strings.TrimSpace(n.Email) == "" {
		return
	}
	subject := fmt.Sprintf("Order %s is now %s", n.OrderNumber, n.Status)
	plain := fmt.Sprintf("Your order %s has been updated to: %s.\n", n.OrderNumber, n.Status)
	s.deliver(ctx, "notification.status_update", n.Email, subject, plain, map[string]any{
		"orderId": n.OrderID,
		"status":  string(n.Status),
	})
}

// deliver sends in the background so callers never block on the mail provider.
func (s *notificationService) deliver(ctx context.Context, event, to, subject, plain string, fields map[string]any) {
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromAddress),
		subject,
		mail.NewEmail("", strings.TrimSpace(to)),
		plain,
		"",
	)

	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, notificationSendTimeout)
		defer cancel()

		status, err := s.sender.Send(sendCtx, message)
		if err != nil || status >= http.StatusBadRequest {
			logFields := map[string]any{"status": status}
			for k, v := range fields {
				logFields[k] = v
			}
			if err != nil {
				logFields["error"] = err.Error()
			}
			s.logger(sendCtx, event+"_failed", logFields)
			return
		}
		s.logger(sendCtx, event+"_sent", fields)
	}()
}
