package salesforce_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/infra/salesforce"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleBundle() salesforce.ApplicationBundle {
	login := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	return salesforce.ApplicationBundle{
		Application: &domain.Application{
			Entity:             domain.Entity{ID: uuid.MustParse("69af5d15-0000-4000-8000-000000000001")},
			Stage:              domain.StageApproved,
			ProductOffering:    domain.ProductBuySell,
			LeadStatus:         domain.LeadQualified,
			MortgageStatus:     "Application completed",
			NeedsLender:        true,
			MinPrice:           ptr(123456.0),
			MaxPrice:           ptr(654321.0),
			FilterStatus:       []domain.FilterStatus{domain.FilterArchived},
			HomeBuyingLocation: &domain.Address{City: "Austin", State: "TX"},
			OfferAddress:       &domain.Address{Street: "12 Oak St", Unit: "B", City: "Austin", State: "TX", Zip: "78701"},
		},
		Customer:     &domain.Customer{Name: "Ada Lovelace King", Email: "ada@example.com", Phone: "5125550100"},
		User:         &domain.User{FirstLogin: &login, LastLogin: &login, LoginCount: 3},
		BuyingAgent:  &domain.Agent{Name: "Bea Buyer", Email: "bea@realty.test", Phone: "5125550111", Company: "Realty Austin", IsCertified: true, CRMRecord: domain.CRMRecord{SalesforceID: "003B"}},
		ListingAgent: &domain.Agent{Name: "Lee Lister", Email: "lee@realty.test"},
		Lender:       &domain.MortgageLender{Name: "Lena", Company: "Bank", Email: "lena@bank.test", Phone: "5125550122"},
		CurrentHome:  &domain.CurrentHome{Address: domain.Address{Street: "1 Elm", City: "Round Rock", State: "TX", Zip: "78664"}},
	}
}

func TestProjectApplication_ComposesRelatedRecords(t *testing.T) {
	got := salesforce.ProjectApplication(sampleBundle())

	assert.Equal(t, "Approved", got["Stage__c"])
	assert.Equal(t, "654321", got["Max_Price__c"], "numbers are stringified")
	assert.Equal(t, true, got["Needs_Lender__c"], "booleans are preserved")
	assert.Equal(t, false, got["Needs_Buying_Agent__c"])
	assert.Equal(t, "Ada", got["FirstName"])
	assert.Equal(t, "Lovelace King", got["LastName"])
	assert.Equal(t, "ada@example.com", got["PersonEmail"])
	assert.Equal(t, "3", got["Login_Count__c"])
	assert.Equal(t, "2024-02-01T09:30:00Z", got["Last_Login__c"])

	assert.Equal(t, "003B", got["Buying_Agent__c"])
	assert.Equal(t, "(512) 555-0111", got["Buying_Agent_Phone__c"])
	assert.Equal(t, "Realty Austin", got["Buying_Agent_Company__c"])
	assert.Equal(t, "Lee Lister", got["Listing_Agent_Name__c"])
	assert.NotContains(t, got, "Listing_Agent_Company__c", "listing agents have a smaller field set")
	assert.NotContains(t, got, "Listing_Agent__c", "empty strings are skipped")

	assert.Equal(t, "1 Elm", got["BillingStreet"])
	assert.Equal(t, "78664", got["BillingPostalCode"])
	assert.Equal(t, "Austin", got["Home_Buying_City__c"])
	assert.NotContains(t, got, "Home_Buying_Street__c")
	assert.Equal(t, "12 Oak St B", got["Offer_Street__c"])
	assert.Equal(t, "Lena", got["Lender_Name__c"])
	assert.Equal(t, "Archived", got["Filter_Status__c"])
	assert.NotContains(t, got, "Reassigned_Contract__c")
}

func TestProjectOffer_CollapsesInternalStatuses(t *testing.T) {
	o := &domain.Offer{Status: domain.OfferComplete, ClosingDate: domain.DatePtr("2024-05-01")}
	got := salesforce.ProjectOffer(o, "001A")
	assert.Equal(t, "Incomplete", got["Status__c"])
	assert.Equal(t, "2024-05-01", got["Closing_Date__c"])
	assert.Equal(t, "001A", got["Application__c"])
	assert.NotContains(t, got, "Price__c")
}

func TestProjectNewHomePurchase_CarriesReassignedContract(t *testing.T) {
	n := &domain.NewHomePurchase{ReassignedContract: false, Rent: &domain.Rent{DailyRate: 42.5}}
	got := salesforce.ProjectNewHomePurchase(n, "001A", "")
	assert.Equal(t, false, got["Reassigned_Contract__c"])
	assert.Equal(t, "42.5", got["Rent_Daily_Rate__c"])
	assert.NotContains(t, got, "Offer__c")
}

func TestApplicationRoundTripLeavesEntityUnchanged(t *testing.T) {
	b := sampleBundle()
	before := *b.Application
	raw, err := json.Marshal(salesforce.ProjectApplication(b))
	require.NoError(t, err)

	var payload salesforce.ApplicationPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	app := before
	require.NoError(t, salesforce.ApplyApplicationPayload(&app, &payload))

	assert.Empty(t, domain.DiffApplication(&before, &app))
	assert.Equal(t, before.FilterStatus, app.FilterStatus)
	id, ok := payload.LocalID()
	require.True(t, ok)
	assert.Equal(t, before.ID, id)
}

func TestApplyApplicationPayload_RejectsUnknownStage(t *testing.T) {
	app := &domain.Application{Stage: domain.StageIncomplete}
	err := salesforce.ApplyApplicationPayload(app, &salesforce.ApplicationPayload{Stage: ptr("Launched")})
	var ve *domain.ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.FieldErrors(), "Stage__c")
	assert.Equal(t, domain.StageIncomplete, app.Stage)
}

func TestApplyOfferPayload(t *testing.T) {
	o := &domain.Offer{Status: domain.OfferComplete, ClosingDate: domain.DatePtr("2024-05-01")}
	var p salesforce.OfferPayload
	require.NoError(t, json.Unmarshal([]byte(`{"Id":"a01","Status__c":"Incomplete","Price__c":"500000","Closing_Date__c":"2024-06-01T00:00:00Z"}`), &p))

	require.NoError(t, salesforce.ApplyOfferPayload(o, &p))
	assert.Equal(t, domain.OfferComplete, o.Status, "collapsed status does not demote")
	assert.Equal(t, 500000.0, *o.Price)
	assert.Equal(t, "2024-06-01", o.ClosingDate.String())
	assert.Equal(t, "a01", o.SalesforceID)

	require.NoError(t, json.Unmarshal([]byte(`{"Status__c":"Won","Closing_Date__c":""}`), &p))
	require.NoError(t, salesforce.ApplyOfferPayload(o, &p))
	assert.Equal(t, domain.OfferWon, o.Status)
	assert.Nil(t, o.ClosingDate)
}

func TestApplyNewHomePurchasePayload_BuildsRent(t *testing.T) {
	n := &domain.NewHomePurchase{}
	var p salesforce.NewHomePurchasePayload
	require.NoError(t, json.Unmarshal([]byte(`{"Reassigned_Contract__c":true,"Rent_Daily_Rate__c":31.5,"Homeward_Close_Date__c":"2024-04-01"}`), &p))

	require.NoError(t, salesforce.ApplyNewHomePurchasePayload(n, &p))
	assert.True(t, n.ReassignedContract)
	require.NotNil(t, n.Rent)
	assert.Equal(t, 31.5, n.Rent.DailyRate)
	assert.Equal(t, "2024-04-01", n.HomewardCloseDate.String())
}

func TestSplitPayload(t *testing.T) {
	one, err := salesforce.SplitPayload([]byte(` {"Id":"1"}`))
	require.NoError(t, err)
	assert.Len(t, one, 1)

	many, err := salesforce.SplitPayload([]byte(`[{"Id":"1"},{"Id":"2"}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = salesforce.SplitPayload([]byte(`"nope"`))
	assert.Error(t, err)
}
