package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/business"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

var checkoutTracer = otel.Tracer("booking.internal.payments.checkout")

// ErrPaymentsNotConfigured means no credential can settle the charge:
// the platform secret key is absent. Tenants without a connected
// account still check out on the platform key.
var ErrPaymentsNotConfigured = errors.New("payments: no payment credential configured")

// tenantConfigSource resolves a tenant's payment configuration.
type tenantConfigSource interface {
	Get(ctx context.Context, businessID string) (*business.PaymentConfig, error)
}

// CheckoutParams describe one checkout session.
type CheckoutParams struct {
	BusinessID  string
	Token       Token
	AmountCents int64
	Description string
	// CustomerEmail prefills the provider's payment page.
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider session the customer is sent to.
type CheckoutSession struct {
	Provider  string `json:"provider"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutService creates Stripe Checkout Sessions. Tenants with a
// charge-enabled connected account get a destination charge with the
// platform fee taken as an application fee; tenants without one are
// charged directly on the platform key.
type CheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	// defaultFeeBps applies when the tenant config carries no override.
	defaultFeeBps int
	httpClient    *http.Client
	tenants       tenantConfigSource
	logger        *logging.Logger
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(secretKey, successURL, cancelURL string, defaultFeeBps int, timeout time.Duration, tenants tenantConfigSource, logger *logging.Logger) *CheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CheckoutService{
		secretKey:     secretKey,
		successURL:    successURL,
		cancelURL:     cancelURL,
		baseURL:       "https://api.stripe.com",
		apiVersion:    "2024-12-18.acacia",
		defaultFeeBps: defaultFeeBps,
		httpClient:    &http.Client{Timeout: timeout},
		tenants:       tenants,
		logger:        logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *CheckoutService) WithBaseURL(baseURL string) *CheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// Create opens a checkout session for the tenant. The reconciliation
// token rides in the session metadata and comes back on the webhook.
func (s *CheckoutService) Create(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	ctx, span := checkoutTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.business_id", params.BusinessID),
		attribute.Int64("payments.amount_cents", params.AmountCents),
	)

	if s.secretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key missing", ErrPaymentsNotConfigured)
	}
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: amount must be positive, got %d", params.AmountCents)
	}

	cfg, err := s.tenants.Get(ctx, params.BusinessID)
	if err != nil {
		return nil, err
	}

	// Route to the tenant's connected account when it can take
	// charges; everything else settles on the platform key.
	connected := cfg.UsesStripe() && cfg.ChargesEnabled
	var feeCents int64
	if connected {
		feeBps := cfg.ApplicationFeeBps
		if feeBps == 0 {
			feeBps = s.defaultFeeBps
		}
		feeCents = params.AmountCents * int64(feeBps) / 10000
	} else {
		s.logger.Info("no connected account, charging on platform key",
			"business_id", params.BusinessID)
	}

	description := strings.TrimSpace(params.Description)
	if description == "" {
		description = "Booking"
	}
	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", params.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")
	if successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	for k, v := range params.Token.Metadata() {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
	if connected {
		form.Set("payment_intent_data[transfer_data][destination]", cfg.StripeAccountID)
		if feeCents > 0 {
			form.Set("payment_intent_data[application_fee_amount]", fmt.Sprintf("%d", feeCents))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}

	s.logger.Info("checkout session created",
		"business_id", params.BusinessID, "session_id", parsed.ID,
		"amount_cents", params.AmountCents, "fee_cents", feeCents)
	return &CheckoutSession{Provider: "stripe", SessionID: parsed.ID, URL: parsed.URL}, nil
}
