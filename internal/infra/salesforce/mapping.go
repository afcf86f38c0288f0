package salesforce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/google/uuid"
)

// CRM object names.
const (
	ObjectAccount         = "Account"
	ObjectContact         = "Contact"
	ObjectBrokerage       = "Brokerage__c"
	ObjectProperty        = "Property__c"
	ObjectOffer           = "Offer__c"
	ObjectNewHomePurchase = "New_Home_Purchase__c"
	ObjectLoan            = "Loan__c"
	ObjectFollowup        = "Followup__c"
)

var objects = map[domain.EntityKind]string{
	domain.KindApplication:     ObjectAccount,
	domain.KindAgent:           ObjectContact,
	domain.KindBrokerage:       ObjectBrokerage,
	domain.KindCurrentHome:     ObjectProperty,
	domain.KindOffer:           ObjectOffer,
	domain.KindNewHomePurchase: ObjectNewHomePurchase,
	domain.KindLoan:            ObjectLoan,
	domain.KindFollowup:        ObjectFollowup,
}

// ObjectFor returns the CRM object an entity kind is published as.
func ObjectFor(kind domain.EntityKind) (string, error) {
	o, ok := objects[kind]
	if !ok {
		return "", fmt.Errorf("entity kind %q is not mirrored in salesforce", kind)
	}
	return o, nil
}

type field struct {
	name  string
	value any
}

// project renders a field list for the CRM. Empty strings and unset values
// are skipped, booleans are kept as booleans and everything else is
// stringified.
func project(fields ...field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := render(f.value); ok {
			out[f.name] = v
		}
	}
	return out
}

func render(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		return x, x != ""
	case bool:
		return x, true
	case *bool:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *string:
		if x == nil {
			return nil, false
		}
		return *x, *x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case *float64:
		if x == nil {
			return nil, false
		}
		return strconv.FormatFloat(*x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case *int:
		if x == nil {
			return nil, false
		}
		return strconv.Itoa(*x), true
	case uuid.UUID:
		return x.String(), x != uuid.Nil
	case *uuid.UUID:
		if x == nil || *x == uuid.Nil {
			return nil, false
		}
		return x.String(), true
	case domain.Date:
		return x.String(), !x.IsZero()
	case *domain.Date:
		if x == nil || x.IsZero() {
			return nil, false
		}
		return x.String(), true
	case time.Time:
		return x.UTC().Format(time.RFC3339), !x.IsZero()
	case *time.Time:
		if x == nil {
			return nil, false
		}
		return x.UTC().Format(time.RFC3339), true
	}
	s := fmt.Sprint(v)
	return s, s != ""
}

func streetLine(a *domain.Address) string {
	if a == nil {
		return ""
	}
	if a.Unit == "" {
		return a.Street
	}
	return strings.TrimSpace(a.Street + " " + a.Unit)
}

// customAddress maps an address onto Prefix_Street__c, Prefix_City__c, ...
func customAddress(prefix string, a *domain.Address) []field {
	if a.IsZero() {
		return nil
	}
	return []field{
		{prefix + "Street__c", streetLine(a)},
		{prefix + "City__c", a.City},
		{prefix + "State__c", a.State},
		{prefix + "Zip__c", a.Zip},
	}
}

func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// ============================================================
// Application (collapsed with its customer into one Account)
// ============================================================

// ApplicationBundle is everything the Account projection reads.
type ApplicationBundle struct {
	Application  *domain.Application
	Customer     *domain.Customer
	User         *domain.User
	ListingAgent *domain.Agent
	BuyingAgent  *domain.Agent
	Lender       *domain.MortgageLender
	CurrentHome  *domain.CurrentHome
}

func filterStatusText(fs []domain.FilterStatus) string {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, ";")
}

// ProjectApplication composes the Account fields of the application, its
// customer and login data, both agents, the lender, the current home as
// billing address and the two application addresses.
func ProjectApplication(b ApplicationBundle) map[string]any {
	app := b.Application
	fields := []field{
		{"Application_Id__c", app.ID},
		{"Stage__c", app.Stage},
		{"Product_Offering__c", app.ProductOffering},
		{"Lead_Status__c", app.LeadStatus},
		{"Mortgage_Status__c", app.MortgageStatus},
		{"Needs_Buying_Agent__c", app.NeedsBuyingAgent},
		{"Needs_Listing_Agent__c", app.NeedsListingAgent},
		{"Needs_Lender__c", app.NeedsLender},
		{"Min_Price__c", app.MinPrice},
		{"Max_Price__c", app.MaxPrice},
		{"Apex_Partner_Slug__c", app.ApexPartnerSlug},
		{"Filter_Status__c", filterStatusText(app.FilterStatus)},
	}
	fields = append(fields, customerFields(b.Customer)...)
	fields = append(fields, loginFields(b.User)...)
	fields = append(fields, listingAgentFields(b.ListingAgent)...)
	fields = append(fields, buyingAgentFields(b.BuyingAgent)...)
	fields = append(fields, lenderFields(b.Lender)...)
	if b.CurrentHome != nil {
		a := &b.CurrentHome.Address
		fields = append(fields,
			field{"BillingStreet", streetLine(a)},
			field{"BillingCity", a.City},
			field{"BillingState", a.State},
			field{"BillingPostalCode", a.Zip},
		)
	}
	fields = append(fields, customAddress("Home_Buying_", app.HomeBuyingLocation)...)
	fields = append(fields, customAddress("Offer_", app.OfferAddress)...)
	return project(fields...)
}

func customerFields(c *domain.Customer) []field {
	if c == nil {
		return nil
	}
	return []field{
		{"FirstName", c.FirstName()},
		{"LastName", c.LastName()},
		{"PersonEmail", c.Email},
		{"Phone", c.Phone},
		{"Co_Borrower_Email__c", c.CoBorrowerEmail},
	}
}

func loginFields(u *domain.User) []field {
	if u == nil {
		return nil
	}
	return []field{
		{"First_Login__c", u.FirstLogin},
		{"Last_Login__c", u.LastLogin},
		{"Login_Count__c", u.LoginCount},
	}
}

func listingAgentFields(a *domain.Agent) []field {
	if a == nil {
		return nil
	}
	return []field{
		{"Listing_Agent__c", a.SalesforceID},
		{"Listing_Agent_Name__c", a.Name},
		{"Listing_Agent_Email__c", a.Email},
		{"Listing_Agent_Phone__c", a.FormattedPhone()},
	}
}

// Buying agents additionally carry company and certification, which drive
// routing on the CRM side.
func buyingAgentFields(a *domain.Agent) []field {
	if a == nil {
		return nil
	}
	return []field{
		{"Buying_Agent__c", a.SalesforceID},
		{"Buying_Agent_Name__c", a.Name},
		{"Buying_Agent_Email__c", a.Email},
		{"Buying_Agent_Phone__c", a.FormattedPhone()},
		{"Buying_Agent_Company__c", a.Company},
		{"Buying_Agent_Certified__c", a.IsCertified},
	}
}

func lenderFields(m *domain.MortgageLender) []field {
	if m == nil {
		return nil
	}
	return []field{
		{"Lender_Name__c", m.Name},
		{"Lender_Company__c", m.Company},
		{"Lender_Email__c", m.Email},
		{"Lender_Phone__c", m.Phone},
	}
}

// ============================================================
// Other mirrored entities
// ============================================================

func ProjectAgent(a *domain.Agent, brokerageSFID string) map[string]any {
	first, last := splitName(a.Name)
	if last == "" {
		first, last = "", first
	}
	return project(
		field{"Agent_Id__c", a.ID},
		field{"FirstName", first},
		field{"LastName", last},
		field{"Email", a.Email},
		field{"Phone", a.FormattedPhone()},
		field{"Company__c", a.Company},
		field{"Is_Certified__c", a.IsCertified},
		field{"Brokerage__c", brokerageSFID},
	)
}

func ProjectBrokerage(b *domain.Brokerage) map[string]any {
	return project(
		field{"Brokerage_Id__c", b.ID},
		field{"Name", b.Name},
		field{"Partnership_Status__c", b.PartnershipStatus},
		field{"Logo_URL__c", b.LogoURL},
	)
}

func ProjectCurrentHome(h *domain.CurrentHome, applicationSFID string) map[string]any {
	fields := []field{
		{"Current_Home_Id__c", h.ID},
		{"Application__c", applicationSFID},
		{"Market_Value__c", h.MarketValue},
		{"Outstanding_Loan_Amount__c", h.OutstandingLoanAmount},
		{"Customer_Value_Opinion__c", h.CustomerValueOpinion},
		{"Listing_Status__c", h.ListingStatus},
		{"Listing_URL__c", h.ListingURL},
		{"Sqft__c", h.Sqft},
		{"Bedrooms__c", h.Bedrooms},
		{"Bathrooms__c", h.Bathrooms},
		{"Year_Built__c", h.YearBuilt},
		{"Has_Pool__c", h.HasPool},
	}
	fields = append(fields, customAddress("", &h.Address)...)
	if fp := h.FloorPrice; fp != nil {
		fields = append(fields,
			field{"Floor_Price_Type__c", fp.Type},
			field{"Preliminary_Floor_Price__c", fp.PreliminaryAmount},
			field{"Confirmed_Floor_Price__c", fp.ConfirmedAmount},
		)
	}
	return project(fields...)
}

// ProjectOffer pushes the external status; Incomplete and Complete collapse.
func ProjectOffer(o *domain.Offer, applicationSFID string) map[string]any {
	fields := []field{
		{"Offer_Id__c", o.ID},
		{"Application__c", applicationSFID},
		{"Status__c", o.Status.External()},
		{"Price__c", o.Price},
		{"Contract_Type__c", o.ContractType},
		{"Property_Type__c", o.PropertyType},
		{"Funding_Type__c", o.FundingType},
		{"Contract_Date__c", o.ContractDate},
		{"Option_Period_End_Date__c", o.OptionPeriodEndDate},
		{"Closing_Date__c", o.ClosingDate},
		{"Preferred_Closing_Date__c", o.PreferredClosingDate},
		{"PDA_Listing_UUID__c", o.PDAListingUUID},
		{"Year_Built__c", o.YearBuilt},
		{"Sqft__c", o.Sqft},
		{"Photo_URL__c", o.PhotoURL},
		{"Bedrooms__c", o.Bedrooms},
		{"Bathrooms__c", o.Bathrooms},
		{"Has_HOA__c", o.HasHOA},
		{"Office_Name__c", o.OfficeName},
		{"Less_Than_One_Acre__c", o.LessThanOneAcre},
		{"List_Price__c", o.ListPrice},
	}
	fields = append(fields, customAddress("", &o.Address)...)
	return project(fields...)
}

// ProjectNewHomePurchase is the only projection carrying reassigned_contract.
func ProjectNewHomePurchase(n *domain.NewHomePurchase, applicationSFID, offerSFID string) map[string]any {
	fields := []field{
		{"New_Home_Purchase_Id__c", n.ID},
		{"Application__c", applicationSFID},
		{"Offer__c", offerSFID},
		{"Contract_Price__c", n.ContractPrice},
		{"Earnest_Deposit_Percentage__c", n.EarnestDepositPercentage},
		{"Reassigned_Contract__c", n.ReassignedContract},
		{"Option_Period_End_Date__c", n.OptionPeriodEndDate},
		{"Homeward_Close_Date__c", n.HomewardCloseDate},
		{"Customer_Close_Date__c", n.CustomerCloseDate},
	}
	fields = append(fields, customAddress("", &n.Address)...)
	if r := n.Rent; r != nil {
		fields = append(fields,
			field{"Rent_Type__c", r.Type},
			field{"Rent_Daily_Rate__c", r.DailyRate},
			field{"Rent_Monthly_Rate__c", r.MonthlyRate},
			field{"Rent_Waived_Credit__c", r.WaivedCredit},
			field{"Rent_Leaseback_Credit__c", r.LeasebackCredit},
			field{"Rent_Stop_Date__c", r.StopDate},
		)
	}
	return project(fields...)
}

func ProjectLoan(l *domain.Loan, applicationSFID string) map[string]any {
	return project(
		field{"Loan_Id__c", l.ID},
		field{"Application__c", applicationSFID},
		field{"Blend_Loan_Id__c", l.BlendLoanID},
		field{"Blend_Status__c", l.BlendStatus},
	)
}

func ProjectFollowup(f *domain.Followup, loanSFID, applicationSFID string) map[string]any {
	return project(
		field{"Followup_Id__c", f.ID},
		field{"Loan__c", loanSFID},
		field{"Application__c", applicationSFID},
		field{"Blend_Followup_Id__c", f.BlendFollowupID},
		field{"Type__c", f.Type},
		field{"Status__c", f.Status},
		field{"Description__c", f.Description},
		field{"Requested_Date__c", f.RequestedDate},
	)
}
