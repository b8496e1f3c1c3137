package catalog

// Package catalog loads the pricing profile used to total carts.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smartapp/orderpay/internal/payments"
)

type Profile struct {
	Pricing PricingConfig `yaml:"pricing"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// PricingConfig drives cart totals. AnyPromoDiscountCents applies to any code
// not listed in PromoCodes.
type PricingConfig struct {
	Currency              string        `yaml:"currency"`
	DeliveryFeeCents      int64         `yaml:"delivery_fee_cents"`
	PromoCodes            []PromoConfig `yaml:"promo_codes"`
	AnyPromoDiscountCents int64         `yaml:"any_promo_discount_cents"`
}

type PromoConfig struct {
	Code          string `yaml:"code"`
	DiscountCents int64  `yaml:"discount_cents"`
	Active        bool   `yaml:"active"`
}

type GatewayConfig struct {
	CardWeights       payments.CardWeights `yaml:"card_weights"`
	VerifySuccessRate float64              `yaml:"verify_success_rate"`
	VirtualAccount    string               `yaml:"virtual_account"`
}

func DefaultProfile() *Profile {
	return &Profile{
		Pricing: PricingConfig{
			Currency:              "EGP",
			DeliveryFeeCents:      2500,
			AnyPromoDiscountCents: 5000,
		},
		Gateway: GatewayConfig{
			CardWeights:       payments.DefaultCardWeights(),
			VerifySuccessRate: payments.DefaultVerifySuccessRate,
			VirtualAccount:    payments.DefaultVirtualAccount,
		},
	}
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse overlays content on the default profile, so omitted keys keep their
// defaults.
func (p *Parser) Parse(content []byte) (*Profile, error) {
	profile := DefaultProfile()
	if err := yaml.Unmarshal(content, profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return profile, nil
}

func (p *Parser) ParseFromString(content string) (*Profile, error) {
	return p.Parse([]byte(content))
}

// LoadFile reads a profile from disk. An empty path yields the defaults.
func (p *Parser) LoadFile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing profile: %w", err)
	}
	return p.Parse(content)
}
