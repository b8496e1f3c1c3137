package catalog

// Package catalog provides configuration validation.

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var (
	currencyRegex  = regexp.MustCompile(`^[A-Z]{3}$`)
	promoCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
)

func (v *Validator) Validate(profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("pricing profile is required")
	}
	if err := v.validatePricing(&profile.Pricing); err != nil {
		return fmt.Errorf("pricing validation failed: %w", err)
	}
	if err := v.validateGateway(&profile.Gateway); err != nil {
		return fmt.Errorf("gateway validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validatePricing(pricing *PricingConfig) error {
	if !currencyRegex.MatchString(pricing.Currency) {
		return fmt.Errorf("currency must be a three letter upper case ISO code")
	}

	if pricing.DeliveryFeeCents < 0 {
		return fmt.Errorf("delivery fee must be zero or positive")
	}

	if pricing.AnyPromoDiscountCents < 0 {
		return fmt.Errorf("fallback promo discount must be zero or positive")
	}

	codes := make(map[string]bool)
	for i, promo := range pricing.PromoCodes {
		if !promoCodeRegex.MatchString(promo.Code) {
			return fmt.Errorf("promo %d has an invalid code", i)
		}
		if promo.DiscountCents <= 0 {
			return fmt.Errorf("promo %s discount must be positive", promo.Code)
		}

		key := strings.ToUpper(promo.Code)
		if codes[key] {
			return fmt.Errorf("duplicate promo code: %s", promo.Code)
		}
		codes[key] = true
	}

	return nil
}

func (v *Validator) validateGateway(gateway *GatewayConfig) error {
	weights := gateway.CardWeights
	if weights.Paid < 0 || weights.Failed < 0 || weights.Pending < 0 {
		return fmt.Errorf("card weights must be zero or positive")
	}
	if weights.Paid+weights.Failed+weights.Pending <= 0 {
		return fmt.Errorf("at least one card weight must be positive")
	}

	if gateway.VerifySuccessRate < 0 || gateway.VerifySuccessRate > 1 {
		return fmt.Errorf("verify success rate must be between 0 and 1")
	}

	if strings.TrimSpace(gateway.VirtualAccount) == "" {
		return fmt.Errorf("virtual account is required")
	}

	return nil
}
