package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// tokenExpirySkew refreshes the cached token slightly before PayPal expires it.
const tokenExpirySkew = 30 * time.Second

// PayPalLogger defines the logging contract for PayPal provider operations.
type PayPalLogger func(ctx context.Context, event string, fields map[string]any)

// PayPalError carries the decoded PayPal error body alongside the HTTP status.
type PayPalError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *PayPalError) Error() string {
	return fmt.Sprintf("paypal: %s (%d): %s", e.Name, e.StatusCode, e.Message)
}

// PayPalProviderConfig configures the PayPalProvider.
type PayPalProviderConfig struct {
	BaseURL    string
	ClientID   string
	Secret     string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     PayPalLogger
}

// PayPalProvider implements the Provider interface against the PayPal
// Orders v2 REST API. Card charges are not supported; the card provider
// handles those.
type PayPalProvider struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client
	clock    func() time.Time
	logger   PayPalLogger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ Provider = (*PayPalProvider)(nil)

// NewPayPalProvider constructs a PayPal Provider using the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("paypal: base url is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	secret := strings.TrimSpace(cfg.Secret)
	if clientID == "" || secret == "" {
		return nil, errors.New("paypal: client credentials are required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayPalProvider{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		client:   client,
		clock:    clock,
		logger:   logger,
	}, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Amount      *paypalAmount `json:"amount,omitempty"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalOrderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string       `json:"reference_id"`
		Amount      paypalAmount `json:"amount"`
		Payments    *struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments,omitempty"`
	} `json:"purchase_units"`
	Links []paypalLink `json:"links"`
}

// CreateOrder opens a PayPal order with intent CAPTURE. The local order id
// travels in the purchase unit's reference_id so the capture can be matched
// back server side.
func (p *PayPalProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	if strings.TrimSpace(req.ReferenceID) == "" {
		return ProviderOrder{}, errors.New("paypal: reference id is required")
	}
	if req.Amount <= 0 {
		return ProviderOrder{}, errors.New("paypal: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []paypalPurchaseUnit{{
			ReferenceID: strings.TrimSpace(req.ReferenceID),
			Description: strings.TrimSpace(req.Description),
			Amount: &paypalAmount{
				CurrencyCode: currency,
				Value:        formatAmount(req.Amount),
			},
		}},
	}

	var resp paypalOrderResponse
	if err := p.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &resp); err != nil {
		return ProviderOrder{}, err
	}

	order := ProviderOrder{
		ID:     resp.ID,
		Status: mapPayPalStatus(resp.Status),
		Raw:    map[string]any{"status": resp.Status},
	}
	for _, link := range resp.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			order.ApproveURL = link.Href
			break
		}
	}

	p.logger(ctx, "paypal.order_created", map[string]any{
		"provider_order_id": resp.ID,
		"reference_id":      req.ReferenceID,
		"status":            resp.Status,
	})
	return order, nil
}

// Capture settles an approved PayPal order and returns the capture details.
func (p *PayPalProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	id := strings.TrimSpace(req.ProviderOrderID)
	if id == "" {
		return PaymentDetails{}, errors.New("paypal: provider order id is required")
	}

	var resp paypalOrderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(id))
	if err := p.doJSON(ctx, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return PaymentDetails{}, err
	}

	details := detailsFromOrder(resp)
	p.logger(ctx, "paypal.order_captured", map[string]any{
		"provider_order_id": resp.ID,
		"transaction_id":    details.TransactionID,
		"status":            resp.Status,
	})
	if details.Status != StatusCompleted {
		return details, fmt.Errorf("%w: capture returned status %s", ErrDeclined, resp.Status)
	}
	capturedAt := p.clock().UTC()
	details.CapturedAt = &capturedAt
	return details, nil
}

// Charge is not supported by PayPal; cards go through the card provider.
func (p *PayPalProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	return PaymentDetails{}, fmt.Errorf("%w: paypal does not accept direct card charges", ErrUnsupportedOperation)
}

// Lookup fetches the current PayPal order state for reconciliation.
func (p *PayPalProvider) Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	id := strings.TrimSpace(req.ProviderOrderID)
	if id == "" {
		return PaymentDetails{}, errors.New("paypal: provider order id is required")
	}

	var resp paypalOrderResponse
	path := fmt.Sprintf("/v2/checkout/orders/%s", url.PathEscape(id))
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return PaymentDetails{}, err
	}
	return detailsFromOrder(resp), nil
}

func detailsFromOrder(resp paypalOrderResponse) PaymentDetails {
	details := PaymentDetails{
		Provider:      "paypal",
		TransactionID: resp.ID,
		Status:        mapPayPalStatus(resp.Status),
		Raw:           map[string]any{"status": resp.Status},
	}
	if len(resp.PurchaseUnits) > 0 {
		unit := resp.PurchaseUnits[0]
		details.ReferenceID = unit.ReferenceID
		details.Currency = unit.Amount.CurrencyCode
		details.Amount = parseAmount(unit.Amount.Value)
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			details.TransactionID = capture.ID
			details.Amount = parseAmount(capture.Amount.Value)
			details.Currency = capture.Amount.CurrencyCode
			details.Raw["capture_status"] = capture.Status
		}
	}
	return details
}

func mapPayPalStatus(status string) Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return StatusCreated
	case "APPROVED":
		return StatusApproved
	case "COMPLETED":
		return StatusCompleted
	default:
		return StatusDeclined
	}
}

func (p *PayPalProvider) doJSON(ctx context.Context, method, path string, payload, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paypal: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodePayPalError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paypal: decode response: %w", err)
		}
	}
	return nil
}

func decodePayPalError(statusCode int, raw []byte) error {
	perr := &PayPalError{StatusCode: statusCode, Name: "UNKNOWN"}
	var body struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Details []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Name != "" {
			perr.Name = body.Name
		}
		perr.Message = body.Message
		if len(body.Details) > 0 && body.Details[0].Issue != "" {
			perr.Name = body.Details[0].Issue
			if body.Details[0].Description != "" {
				perr.Message = body.Details[0].Description
			}
		}
	}
	return perr
}

// token returns a cached OAuth2 access token, refreshing it when expired.
func (p *PayPalProvider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if p.accessToken != "" && now.Add(tokenExpirySkew).Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: build token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.secret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: request token: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("paypal: read token response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodePayPalError(resp.StatusCode, raw)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("paypal: decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("paypal: token response missing access_token")
	}

	p.accessToken = body.AccessToken
	p.tokenExpiry = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func parseAmount(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return parsed
}
