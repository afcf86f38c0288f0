package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================
// Shared building blocks
// ============================================================

// Entity carries the identity and timestamps every record has.
type Entity struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID lets generic store helpers reach the id of any record.
func (e *Entity) GetID() uuid.UUID { return e.ID }

// EnsureID assigns the id ahead of the first save so pre-save handlers can
// reference the record.
func (e *Entity) EnsureID() uuid.UUID {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return e.ID
}

// Touch assigns an id on first save and refreshes timestamps.
func (e *Entity) Touch(now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

// CRMRecord is embedded by every entity mirrored into the CRM.
type CRMRecord struct {
	SalesforceID string    `json:"salesforce_id,omitempty"`
	SyncState    SyncState `json:"sync_state,omitempty"`
	SyncError    string    `json:"sync_error,omitempty"`
}

// CRM exposes the embedded CRM state to generic write paths.
func (r *CRMRecord) CRM() *CRMRecord { return r }

// Address is a value object. Every part is optional.
type Address struct {
	Street string `json:"street,omitempty"`
	Unit   string `json:"unit,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// IsZero reports whether no part of the address is set.
func (a *Address) IsZero() bool {
	return a == nil || (a.Street == "" && a.Unit == "" && a.City == "" && a.State == "" && a.Zip == "")
}

// StateOf returns the state of a possibly nil address.
func StateOf(a *Address) string {
	if a == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(a.State))
}

// ============================================================
// People & organisations
// ============================================================

type Customer struct {
	Entity
	Email           string     `json:"email" validate:"required,email"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone,omitempty"`
	CoBorrowerEmail string     `json:"co_borrower_email,omitempty"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
}

// FirstName returns the part of the name before the first space.
func (c *Customer) FirstName() string {
	first, _, _ := strings.Cut(strings.TrimSpace(c.Name), " ")
	return first
}

// LastName returns everything after the first space.
func (c *Customer) LastName() string {
	_, last, _ := strings.Cut(strings.TrimSpace(c.Name), " ")
	return strings.TrimSpace(last)
}

type Brokerage struct {
	Entity
	CRMRecord
	Name              string `json:"name"`
	PartnershipStatus string `json:"partnership_status,omitempty"`
	LogoURL           string `json:"logo_url,omitempty"`
}

type MortgageLender struct {
	Entity
	ApplicationID uuid.UUID `json:"application_id"`
	Name          string    `json:"name"`
	Company       string    `json:"company,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
}

// IsComplete reports whether enough contact data exists to reach the lender.
func (m *MortgageLender) IsComplete() bool {
	return m != nil && m.Name != "" && m.Email != "" && m.Phone != ""
}

// InternalSupportRole names the staff roles attached to an application.
type InternalSupportRole string

const (
	RoleCXManager          InternalSupportRole = "cx_manager"
	RoleLoanAdvisor        InternalSupportRole = "loan_advisor"
	RoleApprovalSpecialist InternalSupportRole = "approval_specialist"
)

type InternalSupportUser struct {
	Entity
	Name  string              `json:"name"`
	Email string              `json:"email"`
	Role  InternalSupportRole `json:"role"`
}

// UserRole is the role carried in access tokens.
type UserRole string

const (
	UserCustomer UserRole = "customer"
	UserAgent    UserRole = "agent"
	UserStaff    UserRole = "staff"
)

type User struct {
	Entity
	Email      string     `json:"email"`
	SSOUserID  string     `json:"sso_user_id,omitempty"`
	Role       UserRole   `json:"role"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	AgentID    *uuid.UUID `json:"agent_id,omitempty"`
	FirstLogin *time.Time `json:"first_login,omitempty"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	LoginCount int        `json:"login_count"`
}

// ============================================================
// Homes
// ============================================================

type FloorPrice struct {
	Type              FloorPriceType `json:"type"`
	PreliminaryAmount *float64       `json:"preliminary_amount,omitempty"`
	ConfirmedAmount   *float64       `json:"confirmed_amount,omitempty"`
}

type CurrentHome struct {
	Entity
	CRMRecord
	ApplicationID         uuid.UUID     `json:"application_id"`
	Address               Address       `json:"address"`
	MarketValue           *float64      `json:"market_value,omitempty"`
	OutstandingLoanAmount *float64      `json:"outstanding_loan_amount,omitempty"`
	CustomerValueOpinion  *float64      `json:"customer_value_opinion,omitempty"`
	ListingStatus         ListingStatus `json:"listing_status,omitempty"`
	ListingURL            string        `json:"listing_url,omitempty"`
	Sqft                  *int          `json:"sqft,omitempty"`
	Bedrooms              *int          `json:"bedrooms,omitempty"`
	Bathrooms             *float64      `json:"bathrooms,omitempty"`
	YearBuilt             *int          `json:"year_built,omitempty"`
	HasPool               *bool         `json:"has_pool,omitempty"`
	Images                []string      `json:"images,omitempty"`
	FloorPrice            *FloorPrice   `json:"floor_price,omitempty"`
}

// ============================================================
// Application
// ============================================================

type Application struct {
	Entity
	CRMRecord
	CustomerID           uuid.UUID        `json:"customer_id"`
	ListingAgentID       *uuid.UUID       `json:"listing_agent_id,omitempty"`
	BuyingAgentID        *uuid.UUID       `json:"buying_agent_id,omitempty"`
	NeedsListingAgent    bool             `json:"needs_listing_agent"`
	NeedsBuyingAgent     bool             `json:"needs_buying_agent"`
	NeedsLender          bool             `json:"needs_lender"`
	CurrentHomeID        *uuid.UUID       `json:"current_home_id,omitempty"`
	HomeBuyingLocation   *Address         `json:"home_buying_location,omitempty"`
	OfferAddress         *Address         `json:"offer_address,omitempty"`
	MortgageLenderID     *uuid.UUID       `json:"mortgage_lender_id,omitempty"`
	NewHomePurchaseID    *uuid.UUID       `json:"new_home_purchase_id,omitempty"`
	PricingID            *uuid.UUID       `json:"pricing_id,omitempty"`
	Stage                ApplicationStage `json:"stage"`
	ProductOffering      ProductOffering  `json:"product_offering"`
	LeadStatus           LeadStatus       `json:"lead_status,omitempty"`
	MortgageStatus       string           `json:"mortgage_status,omitempty"`
	MinPrice             *float64         `json:"min_price,omitempty"`
	MaxPrice             *float64         `json:"max_price,omitempty"`
	FilterStatus         []FilterStatus   `json:"filter_status,omitempty"`
	CXManagerID          *uuid.UUID       `json:"cx_manager_id,omitempty"`
	LoanAdvisorID        *uuid.UUID       `json:"loan_advisor_id,omitempty"`
	ApprovalSpecialistID *uuid.UUID       `json:"approval_specialist_id,omitempty"`
	ApexPartnerSlug      string           `json:"apex_partner_slug,omitempty"`
	Context              map[string]any   `json:"context,omitempty"`
}

// IsMortgageWithdrawn reports whether the CRM marked the mortgage as withdrawn.
func (a *Application) IsMortgageWithdrawn() bool {
	return strings.Contains(strings.ToLower(a.MortgageStatus), "withdrawn")
}

// BuyingState is the purchasing state used by task and disclosure lookups.
func (a *Application) BuyingState() string {
	return StateOf(a.HomeBuyingLocation)
}

type PreApproval struct {
	Entity
	ApplicationID uuid.UUID `json:"application_id"`
	Amount        float64   `json:"amount"`
	IssuedDate    *Date     `json:"issued_date,omitempty"`
}

type StageHistory struct {
	Entity
	ApplicationID uuid.UUID        `json:"application_id"`
	FromStage     ApplicationStage `json:"from_stage,omitempty"`
	ToStage       ApplicationStage `json:"to_stage"`
	Source        string           `json:"source"`
}

type Note struct {
	Entity
	ApplicationID uuid.UUID `json:"application_id"`
	AuthorEmail   string    `json:"author_email"`
	Body          string    `json:"body" validate:"required"`
}

// ============================================================
// Loans & follow-ups
// ============================================================

type Loan struct {
	Entity
	CRMRecord
	ApplicationID uuid.UUID `json:"application_id"`
	BlendLoanID   string    `json:"blend_loan_id"`
	BlendStatus   string    `json:"blend_status,omitempty"`
}

type Followup struct {
	Entity
	CRMRecord
	ApplicationID   uuid.UUID  `json:"application_id"`
	LoanID          uuid.UUID  `json:"loan_id"`
	BlendFollowupID string     `json:"blend_followup_id"`
	Type            string     `json:"type"`
	Status          string     `json:"status,omitempty"`
	Description     string     `json:"description,omitempty"`
	RequestedDate   *time.Time `json:"requested_date,omitempty"`
}

// ============================================================
// Contracts
// ============================================================

type ContractTemplate struct {
	Entity
	BuyingState  string `json:"buying_state"`
	PropertyType string `json:"property_type"`
	ContractType string `json:"contract_type"`
	ObjectKey    string `json:"object_key"`
	Filename     string `json:"filename"`
	Active       bool   `json:"active"`
}
