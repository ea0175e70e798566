package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

var paypalTracer = otel.Tracer("booking.internal.payments.paypal")

// PayPalClient talks to the PayPal Orders v2 API. Access tokens are
// fetched via client-credentials OAuth and cached until shortly before
// expiry.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client
	logger       *logging.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient creates a PayPal API client.
func NewPayPalClient(baseURL, clientID, clientSecret, webhookID string, timeout time.Duration, logger *logging.Logger) *PayPalClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PayPalClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("payments: paypal token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payments: paypal token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("payments: paypal token status %d: %s", resp.StatusCode, string(body))
	}

	var parsed paypalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("payments: paypal token decode: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("payments: paypal token response empty")
	}
	c.accessToken = parsed.AccessToken
	// Renew a minute early so in-flight requests never carry a token
	// that expires mid-call.
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// Capture is the reconciliation-relevant slice of a PayPal capture.
type Capture struct {
	CaptureID   string
	OrderID     string
	CustomID    string
	AmountCents int64
	Currency    string
}

type paypalCaptureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID       string `json:"id"`
				Status   string `json:"status"`
				CustomID string `json:"custom_id"`
				Amount   struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureOrder captures an approved order and returns the completed
// capture. PayPal treats a repeated capture of the same order as an
// error; callers rely on the ledger for idempotency instead.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	ctx, span := paypalTracer.Start(ctx, "paypal.capture_order")
	defer span.End()

	if orderID == "" {
		return nil, fmt.Errorf("payments: paypal: order id required")
	}
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("payments: paypal capture request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: paypal capture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: paypal capture status %d: %s", resp.StatusCode, string(body))
	}

	var parsed paypalCaptureResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: paypal capture decode: %w", err)
	}
	for _, unit := range parsed.PurchaseUnits {
		for _, cap := range unit.Payments.Captures {
			if cap.Status != "COMPLETED" {
				continue
			}
			cents, err := dollarsToCents(cap.Amount.Value)
			if err != nil {
				return nil, fmt.Errorf("payments: paypal capture amount: %w", err)
			}
			return &Capture{
				CaptureID:   cap.ID,
				OrderID:     parsed.ID,
				CustomID:    cap.CustomID,
				AmountCents: cents,
				Currency:    strings.ToLower(cap.Amount.CurrencyCode),
			}, nil
		}
	}
	return nil, fmt.Errorf("payments: paypal capture: no completed capture on order %s", orderID)
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal's verification endpoint whether the
// delivery headers match the payload for our webhook id.
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, payload []byte, header http.Header) error {
	if c.webhookID == "" {
		return nil // bypass for development
	}
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(paypalVerifyRequest{
		AuthAlgo:         header.Get("Paypal-Auth-Algo"),
		CertURL:          header.Get("Paypal-Cert-Url"),
		TransmissionID:   header.Get("Paypal-Transmission-Id"),
		TransmissionSig:  header.Get("Paypal-Transmission-Sig"),
		TransmissionTime: header.Get("Paypal-Transmission-Time"),
		WebhookID:        c.webhookID,
		WebhookEvent:     json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("payments: paypal verify encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/notifications/verify-webhook-signature", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("payments: paypal verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: paypal verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return ErrBadSignature
	}

	var parsed paypalVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("payments: paypal verify decode: %w", err)
	}
	if parsed.VerificationStatus != "SUCCESS" {
		return ErrBadSignature
	}
	return nil
}

func dollarsToCents(value string) (int64, error) {
	whole, frac, _ := strings.Cut(value, ".")
	cents, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	cents *= 100
	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", value, err)
		}
		cents += f
	}
	return cents, nil
}
