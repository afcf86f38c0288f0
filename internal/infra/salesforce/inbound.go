package salesforce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/google/uuid"
)

// Float reads CRM numbers, which arrive as JSON numbers or numeric strings.
// Absent, null and empty values leave Valid false.
type Float struct {
	Value float64
	Valid bool
}

func (f *Float) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = Float{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.NewValidationError("number", fmt.Sprintf("%q is not a number", s))
	}
	*f = Float{Value: v, Valid: true}
	return nil
}

// Ptr returns the value or nil.
func (f Float) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// ============================================================
// Application
// ============================================================

// ApplicationPayload is the Account webhook body.
type ApplicationPayload struct {
	ID                      string  `json:"Id"`
	ApplicationID           string  `json:"Application_Id__c"`
	Email                   string  `json:"PersonEmail"`
	FirstName               string  `json:"FirstName"`
	LastName                string  `json:"LastName"`
	Phone                   string  `json:"Phone"`
	Stage                   *string `json:"Stage__c"`
	ProductOffering         *string `json:"Product_Offering__c"`
	LeadStatus              *string `json:"Lead_Status__c"`
	MortgageStatus          *string `json:"Mortgage_Status__c"`
	ApexPartnerSlug         *string `json:"Apex_Partner_Slug__c"`
	FilterStatus            *string `json:"Filter_Status__c"`
	NeedsBuyingAgent        *bool   `json:"Needs_Buying_Agent__c"`
	NeedsListingAgent       *bool   `json:"Needs_Listing_Agent__c"`
	NeedsLender             *bool   `json:"Needs_Lender__c"`
	MinPrice                Float   `json:"Min_Price__c"`
	MaxPrice                Float   `json:"Max_Price__c"`
	CXManagerEmail          string  `json:"CX_Manager_Email__c"`
	LoanAdvisorEmail        string  `json:"Loan_Advisor_Email__c"`
	ApprovalSpecialistEmail string  `json:"Approval_Specialist_Email__c"`
}

// LocalID returns the application uuid the CRM echoes back, if any.
func (p *ApplicationPayload) LocalID() (uuid.UUID, bool) {
	return parseLocalID(p.ApplicationID)
}

// ApplyApplicationPayload maps an Account webhook onto app. Only fields
// present in the payload are applied; unknown enum values are rejected.
func ApplyApplicationPayload(app *domain.Application, p *ApplicationPayload) error {
	errs := fieldErrors{}
	if v, ok := present(p.Stage); ok {
		st, err := domain.ParseApplicationStage(v)
		errs.add("Stage__c", err)
		if err == nil {
			app.Stage = st
		}
	}
	if v, ok := present(p.ProductOffering); ok {
		po, err := domain.ParseProductOffering(v)
		errs.add("Product_Offering__c", err)
		if err == nil {
			app.ProductOffering = po
		}
	}
	if v, ok := present(p.LeadStatus); ok {
		ls, err := domain.ParseLeadStatus(v)
		errs.add("Lead_Status__c", err)
		if err == nil {
			app.LeadStatus = ls
		}
	}
	if p.MortgageStatus != nil {
		app.MortgageStatus = *p.MortgageStatus
	}
	if p.ApexPartnerSlug != nil {
		app.ApexPartnerSlug = *p.ApexPartnerSlug
	}
	if p.FilterStatus != nil {
		fs, err := parseFilterStatus(*p.FilterStatus)
		errs.add("Filter_Status__c", err)
		if err == nil {
			app.FilterStatus = fs
		}
	}
	if p.NeedsBuyingAgent != nil {
		app.NeedsBuyingAgent = *p.NeedsBuyingAgent
	}
	if p.NeedsListingAgent != nil {
		app.NeedsListingAgent = *p.NeedsListingAgent
	}
	if p.NeedsLender != nil {
		app.NeedsLender = *p.NeedsLender
	}
	if p.MinPrice.Valid {
		app.MinPrice = p.MinPrice.Ptr()
	}
	if p.MaxPrice.Valid {
		app.MaxPrice = p.MaxPrice.Ptr()
	}
	if p.ID != "" {
		app.SalesforceID = p.ID
	}
	return errs.err()
}

func parseFilterStatus(s string) ([]domain.FilterStatus, error) {
	var out []domain.FilterStatus
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part != string(domain.FilterArchived) {
			return nil, domain.NewValidationError("filter_status", fmt.Sprintf("%q is not one of [Archived]", part))
		}
		out = append(out, domain.FilterArchived)
	}
	return out, nil
}

// ============================================================
// Loan
// ============================================================

// LoanPayload is the Loan__c webhook body.
type LoanPayload struct {
	ID              string  `json:"Id"`
	BlendLoanID     string  `json:"Blend_Loan_Id__c"`
	BlendStatus     *string `json:"Blend_Status__c"`
	ApplicationSFID string  `json:"Application__c"`
	ApplicationID   string  `json:"Application_Id__c"`
}

func (p *LoanPayload) LocalApplicationID() (uuid.UUID, bool) {
	return parseLocalID(p.ApplicationID)
}

func ApplyLoanPayload(l *domain.Loan, p *LoanPayload) error {
	if p.BlendLoanID == "" && l.BlendLoanID == "" {
		return domain.NewValidationError("Blend_Loan_Id__c", "required")
	}
	if p.BlendLoanID != "" {
		l.BlendLoanID = p.BlendLoanID
	}
	if p.BlendStatus != nil {
		l.BlendStatus = *p.BlendStatus
	}
	if p.ID != "" {
		l.SalesforceID = p.ID
	}
	return nil
}

// ============================================================
// Offer
// ============================================================

// OfferPayload is the Offer__c webhook body.
type OfferPayload struct {
	ID                  string       `json:"Id"`
	OfferID             string       `json:"Offer_Id__c"`
	Status              *string      `json:"Status__c"`
	Price               Float        `json:"Price__c"`
	ContractType        *string      `json:"Contract_Type__c"`
	PropertyType        *string      `json:"Property_Type__c"`
	FundingType         *string      `json:"Funding_Type__c"`
	ContractDate        *domain.Date `json:"Contract_Date__c"`
	OptionPeriodEndDate *domain.Date `json:"Option_Period_End_Date__c"`
	ClosingDate         *domain.Date `json:"Closing_Date__c"`
}

func (p *OfferPayload) LocalID() (uuid.UUID, bool) {
	return parseLocalID(p.OfferID)
}

// ApplyOfferPayload maps an Offer__c webhook onto o. The CRM reports the
// collapsed Incomplete status for both internal form states, so an
// Incomplete from the CRM does not demote a Complete offer.
func ApplyOfferPayload(o *domain.Offer, p *OfferPayload) error {
	errs := fieldErrors{}
	if v, ok := present(p.Status); ok {
		st, err := domain.ParseOfferStatus(v)
		errs.add("Status__c", err)
		if err == nil && !(st == domain.OfferIncomplete && o.Status == domain.OfferComplete) {
			o.Status = st
		}
	}
	if p.Price.Valid {
		o.Price = p.Price.Ptr()
	}
	if p.ContractType != nil {
		o.ContractType = *p.ContractType
	}
	if p.PropertyType != nil {
		o.PropertyType = *p.PropertyType
	}
	if p.FundingType != nil {
		o.FundingType = *p.FundingType
	}
	o.ContractDate = mergeDate(o.ContractDate, p.ContractDate)
	o.OptionPeriodEndDate = mergeDate(o.OptionPeriodEndDate, p.OptionPeriodEndDate)
	o.ClosingDate = mergeDate(o.ClosingDate, p.ClosingDate)
	if p.ID != "" {
		o.SalesforceID = p.ID
	}
	return errs.err()
}

// ============================================================
// New home purchase
// ============================================================

// NewHomePurchasePayload is the New_Home_Purchase__c webhook body.
type NewHomePurchasePayload struct {
	ID                       string       `json:"Id"`
	NewHomePurchaseID        string       `json:"New_Home_Purchase_Id__c"`
	ApplicationSFID          string       `json:"Application__c"`
	OfferSFID                string       `json:"Offer__c"`
	Street                   *string      `json:"Street__c"`
	City                     *string      `json:"City__c"`
	State                    *string      `json:"State__c"`
	Zip                      *string      `json:"Zip__c"`
	ContractPrice            Float        `json:"Contract_Price__c"`
	EarnestDepositPercentage Float        `json:"Earnest_Deposit_Percentage__c"`
	ReassignedContract       *bool        `json:"Reassigned_Contract__c"`
	OptionPeriodEndDate      *domain.Date `json:"Option_Period_End_Date__c"`
	HomewardCloseDate        *domain.Date `json:"Homeward_Close_Date__c"`
	CustomerCloseDate        *domain.Date `json:"Customer_Close_Date__c"`
	RentType                 *string      `json:"Rent_Type__c"`
	RentDailyRate            Float        `json:"Rent_Daily_Rate__c"`
	RentMonthlyRate          Float        `json:"Rent_Monthly_Rate__c"`
	RentWaivedCredit         Float        `json:"Rent_Waived_Credit__c"`
	RentLeasebackCredit      Float        `json:"Rent_Leaseback_Credit__c"`
	RentStopDate             *domain.Date `json:"Rent_Stop_Date__c"`
}

func (p *NewHomePurchasePayload) LocalID() (uuid.UUID, bool) {
	return parseLocalID(p.NewHomePurchaseID)
}

func ApplyNewHomePurchasePayload(n *domain.NewHomePurchase, p *NewHomePurchasePayload) error {
	setString(&n.Address.Street, p.Street)
	setString(&n.Address.City, p.City)
	setString(&n.Address.State, p.State)
	setString(&n.Address.Zip, p.Zip)
	if p.ContractPrice.Valid {
		n.ContractPrice = p.ContractPrice.Ptr()
	}
	if p.EarnestDepositPercentage.Valid {
		n.EarnestDepositPercentage = p.EarnestDepositPercentage.Ptr()
	}
	if p.ReassignedContract != nil {
		n.ReassignedContract = *p.ReassignedContract
	}
	n.OptionPeriodEndDate = mergeDate(n.OptionPeriodEndDate, p.OptionPeriodEndDate)
	n.HomewardCloseDate = mergeDate(n.HomewardCloseDate, p.HomewardCloseDate)
	n.CustomerCloseDate = mergeDate(n.CustomerCloseDate, p.CustomerCloseDate)

	if p.hasRent() {
		if n.Rent == nil {
			n.Rent = &domain.Rent{}
		}
		r := n.Rent
		setString(&r.Type, p.RentType)
		if p.RentDailyRate.Valid {
			r.DailyRate = p.RentDailyRate.Value
		}
		if p.RentMonthlyRate.Valid {
			r.MonthlyRate = p.RentMonthlyRate.Value
		}
		if p.RentWaivedCredit.Valid {
			r.WaivedCredit = p.RentWaivedCredit.Value
		}
		if p.RentLeasebackCredit.Valid {
			r.LeasebackCredit = p.RentLeasebackCredit.Value
		}
		r.StopDate = mergeDate(r.StopDate, p.RentStopDate)
	}
	if p.ID != "" {
		n.SalesforceID = p.ID
	}
	return nil
}

func (p *NewHomePurchasePayload) hasRent() bool {
	return p.RentType != nil || p.RentDailyRate.Valid || p.RentMonthlyRate.Valid ||
		p.RentWaivedCredit.Valid || p.RentLeasebackCredit.Valid || p.RentStopDate != nil
}

// ============================================================
// helpers
// ============================================================

// SplitPayload accepts a single JSON object or a list of them.
func SplitPayload(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, domain.NewValidationError("body", "must be a JSON object or list of objects")
		}
		return list, nil
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, domain.NewValidationError("body", "must be a JSON object or list of objects")
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

func present(p *string) (string, bool) {
	if p == nil || strings.TrimSpace(*p) == "" {
		return "", false
	}
	return strings.TrimSpace(*p), true
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// mergeDate keeps current when the payload has no date; an empty string
// from the CRM clears it.
func mergeDate(current, incoming *domain.Date) *domain.Date {
	if incoming == nil {
		return current
	}
	if incoming.IsZero() {
		return nil
	}
	d := *incoming
	return &d
}

func parseLocalID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}

type fieldErrors map[string]string

func (f fieldErrors) add(field string, err error) {
	if err != nil {
		f[field] = err.Error()
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return domain.NewFieldErrors(f)
}
