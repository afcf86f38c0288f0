package domain

import "math"

// Rent is charged to the customer between Homeward buying the new home and
// the customer buying it back.
type Rent struct {
	Type            string  `json:"type,omitempty"`
	DailyRate       float64 `json:"daily_rate"`
	MonthlyRate     float64 `json:"monthly_rate"`
	WaivedCredit    float64 `json:"waived_credit"`
	LeasebackCredit float64 `json:"leaseback_credit"`
	StopDate        *Date   `json:"stop_date,omitempty"`
}

// RentSummary holds the derived rent amounts as of a given day.
type RentSummary struct {
	AccruedRent                   float64 `json:"accrued_rent"`
	FutureRentToBeCharged         float64 `json:"future_rent_to_be_charged"`
	EstimatedTotalRent            float64 `json:"estimated_total_rent"`
	EstimatedTotalRentWithCredits float64 `json:"estimated_total_rent_with_credits"`
}

// Summarize derives rent amounts. Rent runs from homewardClose to the
// earlier of the stop date and customerClose; today splits it into accrued
// and future. Missing homewardClose yields a zero summary.
func (r *Rent) Summarize(homewardClose, customerClose *Date, today Date) RentSummary {
	if r == nil || homewardClose == nil {
		return RentSummary{}
	}
	start := *homewardClose
	var end *Date
	if customerClose != nil {
		c := *customerClose
		end = &c
	}
	if r.StopDate != nil && (end == nil || r.StopDate.Before(end.Time)) {
		s := *r.StopDate
		end = &s
	}

	accruedUntil := today
	if end != nil && end.Before(today.Time) {
		accruedUntil = *end
	}
	accruedDays := max(0, start.DaysUntil(accruedUntil))

	futureDays := 0
	if end != nil {
		from := today
		if start.After(today.Time) {
			from = start
		}
		futureDays = max(0, from.DaysUntil(*end))
	}

	accrued := round2(float64(accruedDays) * r.DailyRate)
	future := round2(float64(futureDays) * r.DailyRate)
	total := round2(accrued + future)
	withCredits := math.Max(0, round2(total-r.WaivedCredit-r.LeasebackCredit))
	return RentSummary{
		AccruedRent:                   accrued,
		FutureRentToBeCharged:         future,
		EstimatedTotalRent:            total,
		EstimatedTotalRentWithCredits: withCredits,
	}
}
