package domain

import "github.com/google/uuid"

// Principal is the authenticated caller.
type Principal struct {
	UserID     uuid.UUID
	Email      string
	Role       UserRole
	CustomerID *uuid.UUID
	AgentID    *uuid.UUID
}

func (p *Principal) IsStaff() bool { return p != nil && p.Role == UserStaff }

// CanSee applies tenancy: customers see their own applications, agents the
// ones they represent, staff everything.
func (p *Principal) CanSee(app *Application) bool {
	if p == nil || app == nil {
		return false
	}
	switch p.Role {
	case UserStaff:
		return true
	case UserCustomer:
		return p.CustomerID != nil && *p.CustomerID == app.CustomerID
	case UserAgent:
		if p.AgentID == nil {
			return false
		}
		return (app.BuyingAgentID != nil && *app.BuyingAgentID == *p.AgentID) ||
			(app.ListingAgentID != nil && *app.ListingAgentID == *p.AgentID)
	}
	return false
}

// ParseUserRole rejects unknown roles.
func ParseUserRole(s string) (UserRole, error) {
	switch r := UserRole(s); r {
	case UserCustomer, UserAgent, UserStaff:
		return r, nil
	}
	return "", NewValidationError("role", "must be one of [customer, agent, staff]")
}
