package catalog

import "testing"

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	withPricing := func(mutate func(*Profile)) *Profile {
		profile := DefaultProfile()
		mutate(profile)
		return profile
	}

	tests := []struct {
		name    string
		profile *Profile
		wantErr bool
	}{
		{name: "defaults", profile: DefaultProfile()},
		{name: "nil profile", profile: nil, wantErr: true},
		{
			name:    "lower case currency",
			profile: withPricing(func(p *Profile) { p.Pricing.Currency = "egp" }),
			wantErr: true,
		},
		{
			name:    "negative delivery fee",
			profile: withPricing(func(p *Profile) { p.Pricing.DeliveryFeeCents = -1 }),
			wantErr: true,
		},
		{
			name: "duplicate promo codes",
			profile: withPricing(func(p *Profile) {
				p.Pricing.PromoCodes = []PromoConfig{
					{Code: "SAVE", DiscountCents: 100, Active: true},
					{Code: "save", DiscountCents: 200, Active: true},
				}
			}),
			wantErr: true,
		},
		{
			name:    "zero card weights",
			profile: withPricing(func(p *Profile) { p.Gateway.CardWeights.Paid, p.Gateway.CardWeights.Failed, p.Gateway.CardWeights.Pending = 0, 0, 0 }),
			wantErr: true,
		},
		{
			name:    "verify rate above one",
			profile: withPricing(func(p *Profile) { p.Gateway.VerifySuccessRate = 1.5 }),
			wantErr: true,
		},
		{
			name:    "missing virtual account",
			profile: withPricing(func(p *Profile) { p.Gateway.VirtualAccount = " " }),
			wantErr: true,
		},
	}

	validator := NewValidator()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validator.Validate(tc.profile)
			if tc.wantErr && err == nil {
				t.Fatal("expected error but got none")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
