package domain

import (
	"time"

	"github.com/google/uuid"
)

// Change is the old and new value of one field. Old is nil on create.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes is the explicit change set produced by the write path and handed
// to signal handlers.
type Changes map[string]Change

// Has reports whether field changed.
func (c Changes) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Get returns the change of field (zero Change when unchanged).
func (c Changes) Get(field string) Change {
	return c[field]
}

type trackedField[T any] struct {
	name string
	get  func(*T) any
}

// diff compares the tracked fields. A nil before treats every set field of
// after as changed.
func diff[T any](before, after *T, fields []trackedField[T]) Changes {
	changes := Changes{}
	for _, f := range fields {
		var oldV any
		if before != nil {
			oldV = f.get(before)
		}
		newV := f.get(after)
		if oldV != newV {
			changes[f.name] = Change{Old: oldV, New: newV}
		}
	}
	return changes
}

func uuidVal(p *uuid.UUID) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func floatVal(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func dateVal(p *Date) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func timeVal(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(time.RFC3339Nano)
}

func addressVal(p *Address) any {
	if p.IsZero() {
		return nil
	}
	return *p
}

func strVal(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var applicationFields = []trackedField[Application]{
	{"stage", func(a *Application) any { return strVal(string(a.Stage)) }},
	{"product_offering", func(a *Application) any { return strVal(string(a.ProductOffering)) }},
	{"lead_status", func(a *Application) any { return strVal(string(a.LeadStatus)) }},
	{"mortgage_status", func(a *Application) any { return strVal(a.MortgageStatus) }},
	{"buying_agent_id", func(a *Application) any { return uuidVal(a.BuyingAgentID) }},
	{"listing_agent_id", func(a *Application) any { return uuidVal(a.ListingAgentID) }},
	{"needs_buying_agent", func(a *Application) any { return a.NeedsBuyingAgent }},
	{"needs_listing_agent", func(a *Application) any { return a.NeedsListingAgent }},
	{"needs_lender", func(a *Application) any { return a.NeedsLender }},
	{"current_home_id", func(a *Application) any { return uuidVal(a.CurrentHomeID) }},
	{"mortgage_lender_id", func(a *Application) any { return uuidVal(a.MortgageLenderID) }},
	{"home_buying_location", func(a *Application) any { return addressVal(a.HomeBuyingLocation) }},
	{"offer_address", func(a *Application) any { return addressVal(a.OfferAddress) }},
	{"min_price", func(a *Application) any { return floatVal(a.MinPrice) }},
	{"max_price", func(a *Application) any { return floatVal(a.MaxPrice) }},
	{"apex_partner_slug", func(a *Application) any { return strVal(a.ApexPartnerSlug) }},
	{"cx_manager_id", func(a *Application) any { return uuidVal(a.CXManagerID) }},
	{"loan_advisor_id", func(a *Application) any { return uuidVal(a.LoanAdvisorID) }},
	{"approval_specialist_id", func(a *Application) any { return uuidVal(a.ApprovalSpecialistID) }},
	{"salesforce_id", func(a *Application) any { return strVal(a.SalesforceID) }},
}

// DiffApplication computes the application change set.
func DiffApplication(before, after *Application) Changes {
	return diff(before, after, applicationFields)
}

var offerFields = []trackedField[Offer]{
	{"status", func(o *Offer) any { return strVal(string(o.Status)) }},
	{"pda_listing_uuid", func(o *Offer) any { return uuidVal(o.PDAListingUUID) }},
	{"price", func(o *Offer) any { return floatVal(o.Price) }},
	{"closing_date", func(o *Offer) any { return dateVal(o.ClosingDate) }},
	{"preferred_closing_date", func(o *Offer) any { return dateVal(o.PreferredClosingDate) }},
	{"contract_type", func(o *Offer) any { return strVal(o.ContractType) }},
	{"property_type", func(o *Offer) any { return strVal(o.PropertyType) }},
}

// DiffOffer computes the offer change set.
func DiffOffer(before, after *Offer) Changes {
	return diff(before, after, offerFields)
}

var acknowledgementFields = []trackedField[Acknowledgement]{
	{"is_acknowledged", func(a *Acknowledgement) any { return a.IsAcknowledged }},
	{"acknowledged_at", func(a *Acknowledgement) any { return timeVal(a.AcknowledgedAt) }},
}

func DiffAcknowledgement(before, after *Acknowledgement) Changes {
	return diff(before, after, acknowledgementFields)
}

var taskStatusFields = []trackedField[TaskStatus]{
	{"status", func(t *TaskStatus) any { return strVal(string(t.Status)) }},
}

func DiffTaskStatus(before, after *TaskStatus) Changes {
	return diff(before, after, taskStatusFields)
}

var preApprovalFields = []trackedField[PreApproval]{
	{"amount", func(p *PreApproval) any { return p.Amount }},
}

func DiffPreApproval(before, after *PreApproval) Changes {
	return diff(before, after, preApprovalFields)
}

var userFields = []trackedField[User]{
	{"first_login", func(u *User) any { return timeVal(u.FirstLogin) }},
	{"last_login", func(u *User) any { return timeVal(u.LastLogin) }},
	{"login_count", func(u *User) any { return u.LoginCount }},
}

func DiffUser(before, after *User) Changes {
	return diff(before, after, userFields)
}
