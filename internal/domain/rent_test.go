package domain_test

import (
	"testing"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestRent_Summarize(t *testing.T) {
	homeward := domain.DatePtr("2026-03-01")
	customer := domain.DatePtr("2026-03-31")

	tests := []struct {
		name     string
		rent     *domain.Rent
		homeward *domain.Date
		customer *domain.Date
		today    string
		want     domain.RentSummary
	}{
		{
			name:     "mid stay",
			rent:     &domain.Rent{DailyRate: 100, WaivedCredit: 500, LeasebackCredit: 200},
			homeward: homeward, customer: customer, today: "2026-03-11",
			want: domain.RentSummary{AccruedRent: 1000, FutureRentToBeCharged: 2000, EstimatedTotalRent: 3000, EstimatedTotalRentWithCredits: 2300},
		},
		{
			name:     "stop date ends rent early",
			rent:     &domain.Rent{DailyRate: 100, StopDate: domain.DatePtr("2026-03-21")},
			homeward: homeward, customer: customer, today: "2026-03-11",
			want: domain.RentSummary{AccruedRent: 1000, FutureRentToBeCharged: 1000, EstimatedTotalRent: 2000, EstimatedTotalRentWithCredits: 2000},
		},
		{
			name:     "after customer close",
			rent:     &domain.Rent{DailyRate: 50},
			homeward: homeward, customer: customer, today: "2026-04-10",
			want: domain.RentSummary{AccruedRent: 1500, EstimatedTotalRent: 1500, EstimatedTotalRentWithCredits: 1500},
		},
		{
			name:     "before homeward close",
			rent:     &domain.Rent{DailyRate: 10},
			homeward: homeward, customer: customer, today: "2026-02-20",
			want: domain.RentSummary{FutureRentToBeCharged: 300, EstimatedTotalRent: 300, EstimatedTotalRentWithCredits: 300},
		},
		{
			name:     "credits never go negative",
			rent:     &domain.Rent{DailyRate: 10, WaivedCredit: 1000},
			homeward: homeward, customer: customer, today: "2026-03-11",
			want: domain.RentSummary{AccruedRent: 100, FutureRentToBeCharged: 200, EstimatedTotalRent: 300},
		},
		{
			name:  "no homeward close",
			rent:  &domain.Rent{DailyRate: 100},
			today: "2026-03-11",
		},
		{
			name:     "open ended",
			rent:     &domain.Rent{DailyRate: 20},
			homeward: homeward, today: "2026-03-06",
			want: domain.RentSummary{AccruedRent: 100, EstimatedTotalRent: 100, EstimatedTotalRentWithCredits: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rent.Summarize(tt.homeward, tt.customer, *domain.DatePtr(tt.today))
			assert.Equal(t, tt.want, got)
		})
	}
}
