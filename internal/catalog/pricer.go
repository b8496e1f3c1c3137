package catalog

// Package catalog provides price calculation functionality.

import (
	"fmt"
	"strings"
)

type CartItem struct {
	FoodID              string `json:"food_id" validate:"required"`
	Name                string `json:"name" validate:"required"`
	PortionName         string `json:"portion_name,omitempty"`
	Quantity            int    `json:"quantity" validate:"gte=1,lte=100"`
	UnitPriceCents      int64  `json:"unit_price_cents" validate:"gte=0"`
	CustomizationsCents int64  `json:"customizations_cents" validate:"gte=0"`
	SpecialInstructions string `json:"special_instructions,omitempty" validate:"max=500"`
}

type Totals struct {
	SubtotalCents    int64
	DeliveryFeeCents int64
	DiscountCents    int64
	TotalCents       int64
	WalletUsedCents  int64
	AmountDueCents   int64
	PromoCode        string
}

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

func (p *Pricer) LineTotal(item CartItem) int64 {
	return (item.UnitPriceCents + item.CustomizationsCents) * int64(item.Quantity)
}

// ComputeTotals prices a cart. The discount never exceeds the pre-discount
// total and wallet use is clamped to what is owed.
func (p *Pricer) ComputeTotals(profile *Profile, items []CartItem, promoCode string, walletCents int64) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, fmt.Errorf("cart is empty")
	}

	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return Totals{}, fmt.Errorf("item %s has invalid quantity %d", item.FoodID, item.Quantity)
		}
		if item.UnitPriceCents < 0 || item.CustomizationsCents < 0 {
			return Totals{}, fmt.Errorf("item %s has a negative price", item.FoodID)
		}
		subtotal += p.LineTotal(item)
	}

	totals := Totals{
		SubtotalCents:    subtotal,
		DeliveryFeeCents: profile.Pricing.DeliveryFeeCents,
	}

	promoCode = strings.ToUpper(strings.TrimSpace(promoCode))
	if promoCode != "" {
		discount, err := p.promoDiscount(profile, promoCode)
		if err != nil {
			return Totals{}, err
		}
		totals.PromoCode = promoCode
		totals.DiscountCents = discount
	}

	gross := totals.SubtotalCents + totals.DeliveryFeeCents
	if totals.DiscountCents > gross {
		totals.DiscountCents = gross
	}
	totals.TotalCents = gross - totals.DiscountCents

	switch {
	case walletCents < 0:
		totals.WalletUsedCents = 0
	case walletCents > totals.TotalCents:
		totals.WalletUsedCents = totals.TotalCents
	default:
		totals.WalletUsedCents = walletCents
	}
	totals.AmountDueCents = totals.TotalCents - totals.WalletUsedCents

	return totals, nil
}

func (p *Pricer) promoDiscount(profile *Profile, code string) (int64, error) {
	for _, promo := range profile.Pricing.PromoCodes {
		if strings.EqualFold(promo.Code, code) {
			if !promo.Active {
				return 0, fmt.Errorf("promo code %s is not active", code)
			}
			return promo.DiscountCents, nil
		}
	}
	if profile.Pricing.AnyPromoDiscountCents > 0 {
		return profile.Pricing.AnyPromoDiscountCents, nil
	}
	return 0, fmt.Errorf("promo code %s not found", code)
}
