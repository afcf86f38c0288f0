package service

import (
	"context"
	"fmt"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var usFederal = cal.NewBusinessCalendar()

func init() {
	usFederal.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.PresidentsDay,
		us.MemorialDay,
		us.Juneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ColumbusDay,
		us.VeteransDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	)
}

// maxCapacityWindow bounds one restricted-dates query.
const maxCapacityWindow = 366

// RestrictionReason says why a closing date is not available.
type RestrictionReason string

const (
	RestrictedWeekend  RestrictionReason = "weekend"
	RestrictedHoliday  RestrictionReason = "holiday"
	RestrictedCapacity RestrictionReason = "capacity"
)

type RestrictedDate struct {
	Date   domain.Date       `json:"date"`
	Reason RestrictionReason `json:"reason"`
}

// CapacityCalculator decides which days cannot take another closing.
type CapacityCalculator struct {
	store  port.Store
	perDay int
}

func NewCapacityCalculator(store port.Store, perDay int) *CapacityCalculator {
	if perDay < 1 {
		perDay = 16
	}
	return &CapacityCalculator{store: store, perDay: perDay}
}

// RestrictedClosingDates lists the weekends, US federal holidays and full
// days between from and to, inclusive.
func (c *CapacityCalculator) RestrictedClosingDates(ctx context.Context, from, to domain.Date) ([]RestrictedDate, error) {
	ctx, span := tracer.Start(ctx, "CapacityCalculator.RestrictedClosingDates")
	defer span.End()

	if to.Before(from.Time) {
		return nil, domain.NewValidationError("to", "must not be before from")
	}
	if from.DaysUntil(to) > maxCapacityWindow {
		return nil, domain.NewValidationError("to", fmt.Sprintf("window is limited to %d days", maxCapacityWindow))
	}
	booked, err := c.bookings(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var out []RestrictedDate
	for d := from; !d.After(to.Time); d = domain.NewDate(d.AddDate(0, 0, 1)) {
		if reason, ok := c.restriction(d, booked); ok {
			out = append(out, RestrictedDate{Date: d, Reason: reason})
		}
	}
	return out, nil
}

// IsRestricted reports whether d cannot take another closing.
func (c *CapacityCalculator) IsRestricted(ctx context.Context, d domain.Date) (bool, RestrictionReason, error) {
	booked, err := c.bookings(ctx, d, d)
	if err != nil {
		return false, "", err
	}
	reason, ok := c.restriction(d, booked)
	return ok, reason, nil
}

func (c *CapacityCalculator) restriction(d domain.Date, booked map[string]int) (RestrictionReason, bool) {
	switch {
	case d.Weekday() == time.Saturday || d.Weekday() == time.Sunday:
		return RestrictedWeekend, true
	case isFederalHoliday(d.Time):
		return RestrictedHoliday, true
	case booked[d.String()] >= c.perDay:
		return RestrictedCapacity, true
	}
	return "", false
}

// bookings counts offers holding a slot per closing day.
func (c *CapacityCalculator) bookings(ctx context.Context, from, to domain.Date) (map[string]int, error) {
	offers, err := c.store.ListOffersClosingBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	booked := map[string]int{}
	for _, o := range offers {
		if o.ClosingDate == nil || !o.Status.CountsTowardCapacity() {
			continue
		}
		booked[o.ClosingDate.String()]++
	}
	return booked, nil
}

func isFederalHoliday(t time.Time) bool {
	actual, observed, _ := usFederal.IsHoliday(t)
	return actual || observed
}
