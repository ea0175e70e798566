// Package business holds per-tenant payment configuration.
package business

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PaymentConfig is a tenant's payment setup. Capability flags mirror the
// provider's view of the connected account and are refreshed from
// account-update events.
type PaymentConfig struct {
	BusinessID string `json:"business_id"`
	// Provider selects the checkout flow: "stripe" or "paypal".
	Provider         string `json:"provider,omitempty"`
	StripeAccountID  string `json:"stripe_account_id,omitempty"`
	PayPalMerchantID string `json:"paypal_merchant_id,omitempty"`
	// ApplicationFeeBps is the platform cut in basis points.
	ApplicationFeeBps  int  `json:"application_fee_bps,omitempty"`
	ChargesEnabled     bool `json:"charges_enabled"`
	PayoutsEnabled     bool `json:"payouts_enabled"`
	OnboardingComplete bool `json:"onboarding_complete"`
}

// UsesStripe reports whether checkout should go through Stripe.
func (c *PaymentConfig) UsesStripe() bool {
	return c.Provider == "stripe" && c.StripeAccountID != ""
}

// UsesPayPal reports whether checkout should go through PayPal.
func (c *PaymentConfig) UsesPayPal() bool {
	return c.Provider == "paypal" && c.PayPalMerchantID != ""
}

// CanCharge reports whether the tenant may accept payments right now.
func (c *PaymentConfig) CanCharge() bool {
	return c.ChargesEnabled && (c.UsesStripe() || c.UsesPayPal())
}

// DefaultPaymentConfig is the zero-value config for a tenant with no
// payment setup yet: no provider, nothing enabled.
func DefaultPaymentConfig(businessID string) *PaymentConfig {
	return &PaymentConfig{BusinessID: businessID}
}

// Store persists payment configs in redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a payment config store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(businessID string) string {
	return fmt.Sprintf("business:payments:%s", businessID)
}

// Get retrieves the tenant's payment config, returning the default when
// none has been saved.
func (s *Store) Get(ctx context.Context, businessID string) (*PaymentConfig, error) {
	data, err := s.redis.Get(ctx, s.key(businessID)).Bytes()
	if err == redis.Nil {
		return DefaultPaymentConfig(businessID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("business: get payment config: %w", err)
	}

	var cfg PaymentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("business: unmarshal payment config: %w", err)
	}
	return &cfg, nil
}

// Set saves the tenant's payment config.
func (s *Store) Set(ctx context.Context, cfg *PaymentConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("business: marshal payment config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.BusinessID), data, 0).Err(); err != nil {
		return fmt.Errorf("business: set payment config: %w", err)
	}
	return nil
}

// UpdateCapabilities applies a provider account update to the stored
// config. Onboarding flips to complete the first time both capabilities
// are enabled and stays complete afterwards.
func (s *Store) UpdateCapabilities(ctx context.Context, businessID string, chargesEnabled, payoutsEnabled bool) error {
	cfg, err := s.Get(ctx, businessID)
	if err != nil {
		return fmt.Errorf("business: update capabilities: %w", err)
	}
	cfg.ChargesEnabled = chargesEnabled
	cfg.PayoutsEnabled = payoutsEnabled
	cfg.OnboardingComplete = cfg.OnboardingComplete || (chargesEnabled && payoutsEnabled)
	return s.Set(ctx, cfg)
}

// FindByStripeAccount resolves which tenant a connected Stripe account
// belongs to by scanning the config keyspace.
func (s *Store) FindByStripeAccount(ctx context.Context, accountID string) (*PaymentConfig, error) {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, "business:payments:*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("business: scan payment configs: %w", err)
		}
		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var cfg PaymentConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				continue
			}
			if cfg.StripeAccountID == accountID {
				return &cfg, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return nil, nil
		}
	}
}
