package domain_test

import (
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var newRules = domain.PricingRules{UseNewPricingUpdates: true}

func quote(state string, minPrice, maxPrice float64, product domain.ProductOffering) *domain.Pricing {
	return &domain.Pricing{
		BuyingLocation:  &domain.Address{State: state},
		MinPrice:        &minPrice,
		MaxPrice:        &maxPrice,
		ProductOffering: product,
	}
}

func TestPricing_Calculate(t *testing.T) {
	tests := []struct {
		name    string
		pricing *domain.Pricing
		minFee  float64
		maxFee  float64
		emd     float64
		minRent float64
		maxRent float64
	}{
		{
			name:    "texas buy-sell",
			pricing: quote("TX", 123456, 654321, domain.ProductBuySell),
			minFee:  1.4, maxFee: 1.9, emd: 2.0, minRent: 28.67, maxRent: 151.97,
		},
		{
			name:    "georgia buy-sell",
			pricing: quote("GA", 123456, 654321, domain.ProductBuySell),
			minFee:  1.4, maxFee: 2.9, emd: 2.0, minRent: 28.67, maxRent: 151.97,
		},
		{
			name:    "georgia below fee threshold",
			pricing: quote("ga", 150000, 250000, domain.ProductBuySell),
			minFee:  1.9, maxFee: 2.9, emd: 2.0, minRent: 34.84, maxRent: 58.06,
		},
		{
			name:    "georgia above fee threshold",
			pricing: quote("GA", 300000, 900000, domain.ProductBuySell),
			minFee:  1.4, maxFee: 2.4, emd: 2.0, minRent: 69.68, maxRent: 209.03,
		},
		{
			name:    "buy-only has no min fee",
			pricing: quote("TX", 123456, 654321, domain.ProductBuyOnly),
			minFee:  0, maxFee: 1.9, emd: 2.0, minRent: 28.67, maxRent: 151.97,
		},
		{
			name:    "rent band at one million",
			pricing: quote("TX", 1_000_000, 1_000_000, domain.ProductBuySell),
			minFee:  1.4, maxFee: 1.9, emd: 4.0, minRent: 232.26, maxRent: 232.26,
		},
		{
			name:    "rent band above one million",
			pricing: quote("TX", 500000, 1_240_000, domain.ProductBuySell),
			minFee:  1.4, maxFee: 1.9, emd: 4.0, minRent: 88.71, maxRent: 220,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pricing.Calculate(newRules)

			require.NotNil(t, tt.pricing.EstimatedMinConvenienceFee)
			assert.InDelta(t, tt.minFee, *tt.pricing.EstimatedMinConvenienceFee, 1e-9)
			assert.InDelta(t, tt.maxFee, *tt.pricing.EstimatedMaxConvenienceFee, 1e-9)
			assert.InDelta(t, tt.emd, *tt.pricing.EstimatedEarnestDepositPercentage, 1e-9)
			assert.InDelta(t, tt.minRent, *tt.pricing.EstimatedMinRentAmount, 1e-9)
			assert.InDelta(t, tt.maxRent, *tt.pricing.EstimatedMaxRentAmount, 1e-9)
		})
	}
}

func TestPricing_AgentDiscounts(t *testing.T) {
	ra := quote("TX", 200000, 400000, domain.ProductBuySell)
	ra.AgentsCompany = " RA "
	ra.Calculate(newRules)
	assert.InDelta(t, 1.0, *ra.EstimatedMinConvenienceFee, 1e-9)

	eightZ := quote("TX", 200000, 400000, domain.ProductBuySell)
	eightZ.AgentsCompany = "8z"
	eightZ.Calculate(newRules)
	assert.InDelta(t, 1.9, *eightZ.EstimatedMinConvenienceFee, 1e-9)

	austin := quote("TX", 200000, 400000, domain.ProductBuySell)
	austin.AgentBrokerageName = "Realty Austin"
	austin.Calculate(newRules)
	assert.InDelta(t, 1.0, *austin.EstimatedMinConvenienceFee, 1e-9)
}

func TestPricing_LegacyRules(t *testing.T) {
	legacy := domain.PricingRules{}

	assert.Equal(t, 1.0, domain.EarnestDepositPercentage(400000, legacy))
	assert.Equal(t, 2.0, domain.EarnestDepositPercentage(500000, legacy))
	assert.Equal(t, 3.0, domain.EarnestDepositPercentage(1_500_000, legacy))
	assert.Equal(t, 4.0, domain.EarnestDepositPercentage(2_000_000, legacy))
	assert.Equal(t, 2.0, domain.EarnestDepositPercentage(999_999, newRules))
	assert.Equal(t, 4.0, domain.EarnestDepositPercentage(1_000_000, newRules))

	buyOnly := quote("TX", 123456, 654321, domain.ProductBuyOnly)
	buyOnly.Calculate(legacy)
	assert.Zero(t, *buyOnly.EstimatedMinRentAmount)
	assert.Zero(t, *buyOnly.EstimatedMaxRentAmount)
}

func TestPricing_IncompleteInputsAreIgnored(t *testing.T) {
	p := &domain.Pricing{BuyingLocation: &domain.Address{City: "Austin"}, ProductOffering: domain.ProductBuySell}
	minPrice, maxPrice := 100000.0, 200000.0
	p.MinPrice, p.MaxPrice = &minPrice, &maxPrice

	p.Calculate(newRules)

	assert.False(t, p.CanCalculate())
	assert.Nil(t, p.EstimatedMinConvenienceFee)
	assert.Nil(t, p.EstimatedMaxRentAmount)
}

func TestPricing_AddAction(t *testing.T) {
	p := &domain.Pricing{}
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	require.NoError(t, p.AddAction(domain.PricingSaved, first))
	assert.Nil(t, p.SharedOnDate)
	require.NoError(t, p.AddAction(domain.PricingShared, first))
	require.NoError(t, p.AddAction(domain.PricingShared, later))

	assert.Len(t, p.Actions, 3)
	require.NotNil(t, p.SharedOnDate)
	assert.Equal(t, first, *p.SharedOnDate)

	err := p.AddAction("printed", later)
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)
}
