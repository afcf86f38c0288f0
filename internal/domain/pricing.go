package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PricingAction is an event in a quote's lifecycle.
type PricingAction string

const (
	PricingSaved  PricingAction = "saved"
	PricingShared PricingAction = "shared"
)

type PricingActionEntry struct {
	Action PricingAction `json:"action"`
	At     time.Time     `json:"at"`
}

// Pricing is a quote. Inputs come from the customer or agent, outputs are
// recomputed by Calculate on every write.
type Pricing struct {
	Entity
	BuyingLocation     *Address        `json:"buying_location,omitempty"`
	SellingLocation    *Address        `json:"selling_location,omitempty"`
	MinPrice           *float64        `json:"min_price,omitempty"`
	MaxPrice           *float64        `json:"max_price,omitempty"`
	ProductOffering    ProductOffering `json:"product_offering"`
	AgentID            *uuid.UUID      `json:"agent_id,omitempty"`
	AgentBrokerageName string          `json:"agent_brokerage_name,omitempty"`
	AgentsCompany      string          `json:"agents_company,omitempty"`

	EstimatedMinConvenienceFee        *float64 `json:"estimated_min_convenience_fee,omitempty"`
	EstimatedMaxConvenienceFee        *float64 `json:"estimated_max_convenience_fee,omitempty"`
	EstimatedEarnestDepositPercentage *float64 `json:"estimated_earnest_deposit_percentage,omitempty"`
	EstimatedMinRentAmount            *float64 `json:"estimated_min_rent_amount,omitempty"`
	EstimatedMaxRentAmount            *float64 `json:"estimated_max_rent_amount,omitempty"`

	Actions      []PricingActionEntry `json:"actions,omitempty"`
	SharedOnDate *time.Time           `json:"shared_on_date,omitempty"`
}

const (
	emdBandThreshold     = 1_000_000.0
	gaFeeThreshold       = 300_000.0
	rentBandThreshold    = 1_000_000.0
	realtyAustin         = "realty austin"
	realtyAustinDiscount = 0.4
)

// legacyEMDTiers is the tiered EMD table used before the two-band rule.
// Each entry applies when max price is strictly below UpTo.
var legacyEMDTiers = []struct {
	UpTo    float64
	Percent float64
}{
	{UpTo: 500_000, Percent: 1.0},
	{UpTo: 1_000_000, Percent: 2.0},
	{UpTo: 2_000_000, Percent: 3.0},
	{UpTo: math.Inf(1), Percent: 4.0},
}

// PricingRules toggles the pricing generation in effect.
type PricingRules struct {
	UseNewPricingUpdates bool
}

// CanCalculate reports whether the inputs required by Calculate are present.
func (p *Pricing) CanCalculate() bool {
	return StateOf(p.BuyingLocation) != "" && p.MinPrice != nil && p.MaxPrice != nil
}

// Calculate recomputes every derived output. It is a no-op when the inputs
// are incomplete.
func (p *Pricing) Calculate(rules PricingRules) {
	if !p.CanCalculate() {
		return
	}
	minPrice, maxPrice := *p.MinPrice, *p.MaxPrice
	state := StateOf(p.BuyingLocation)

	emd := EarnestDepositPercentage(maxPrice, rules)
	minFee := p.minConvenienceFee(state, maxPrice)
	maxFee := maxConvenienceFee(state, minPrice)
	pct := monthlyRentPercentage(maxPrice)
	minRent := DailyRent(minPrice, pct)
	maxRent := DailyRent(maxPrice, pct)
	if !rules.UseNewPricingUpdates && p.ProductOffering == ProductBuyOnly {
		// Buy-only had no rent component before the new rule.
		minRent, maxRent = 0, 0
	}

	p.EstimatedEarnestDepositPercentage = &emd
	p.EstimatedMinConvenienceFee = &minFee
	p.EstimatedMaxConvenienceFee = &maxFee
	p.EstimatedMinRentAmount = &minRent
	p.EstimatedMaxRentAmount = &maxRent
}

// EarnestDepositPercentage applies the two-band rule (2% below $1M, else 4%)
// or the legacy tier table when the new pricing is disabled.
func EarnestDepositPercentage(maxPrice float64, rules PricingRules) float64 {
	if !rules.UseNewPricingUpdates {
		for _, tier := range legacyEMDTiers {
			if maxPrice < tier.UpTo {
				return tier.Percent
			}
		}
	}
	if maxPrice < emdBandThreshold {
		return 2.0
	}
	return 4.0
}

func (p *Pricing) minConvenienceFee(state string, maxPrice float64) float64 {
	if p.ProductOffering == ProductBuyOnly {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(p.AgentsCompany)) {
	case "ra":
		return 1.0
	case "8z":
		return 1.9
	}
	fee := 1.4
	if state == "GA" {
		if maxPrice >= gaFeeThreshold {
			fee = 1.4
		} else {
			fee = 1.9
		}
	}
	if strings.EqualFold(strings.TrimSpace(p.AgentBrokerageName), realtyAustin) {
		fee = math.Max(0, round2(fee-realtyAustinDiscount))
	}
	return fee
}

func maxConvenienceFee(state string, minPrice float64) float64 {
	if state == "GA" {
		if minPrice >= gaFeeThreshold {
			return 2.4
		}
		return 2.9
	}
	return 1.9
}

func monthlyRentPercentage(maxPrice float64) float64 {
	if maxPrice <= rentBandThreshold {
		return 0.72
	}
	return 0.55
}

// DailyRent is price × pct% / 31, rounded to cents.
func DailyRent(price, pct float64) float64 {
	return round2(price * pct / 100 / 31)
}

// AddAction appends to the action log. The first share stamps SharedOnDate.
func (p *Pricing) AddAction(action PricingAction, now time.Time) error {
	if action != PricingSaved && action != PricingShared {
		return NewValidationError("action", "must be one of [saved, shared]")
	}
	p.Actions = append(p.Actions, PricingActionEntry{Action: action, At: now})
	if action == PricingShared && p.SharedOnDate == nil {
		t := now
		p.SharedOnDate = &t
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
