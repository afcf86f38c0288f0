package domain

import (
	"github.com/google/uuid"
)

type Offer struct {
	Entity
	CRMRecord
	ApplicationID        uuid.UUID   `json:"application_id"`
	Address              Address     `json:"address"`
	Price                *float64    `json:"price,omitempty"`
	ContractType         string      `json:"contract_type,omitempty"`
	PropertyType         string      `json:"property_type,omitempty"`
	FundingType          string      `json:"funding_type,omitempty"`
	ContractDate         *Date       `json:"contract_date,omitempty"`
	OptionPeriodEndDate  *Date       `json:"option_period_end_date,omitempty"`
	ClosingDate          *Date       `json:"closing_date,omitempty"`
	PreferredClosingDate *Date       `json:"preferred_closing_date,omitempty"`
	Status               OfferStatus `json:"status"`
	PDAListingUUID       *uuid.UUID  `json:"pda_listing_uuid,omitempty"`
	NewHomePurchaseID    *uuid.UUID  `json:"new_home_purchase_id,omitempty"`

	// Enrichable from the property-data aggregator.
	YearBuilt       *int     `json:"year_built,omitempty"`
	Sqft            *int     `json:"sqft,omitempty"`
	PhotoURL        *string  `json:"photo_url,omitempty"`
	Bedrooms        *int     `json:"bedrooms,omitempty"`
	Bathrooms       *float64 `json:"bathrooms,omitempty"`
	HasHOA          *bool    `json:"has_hoa,omitempty"`
	OfficeName      *string  `json:"office_name,omitempty"`
	LessThanOneAcre *bool    `json:"less_than_one_acre,omitempty"`
	ListPrice       *float64 `json:"list_price,omitempty"`
}

// Listing is what the property-data aggregator returns for a listing uuid.
type Listing struct {
	UUID       uuid.UUID `json:"uuid"`
	YearBuilt  *int      `json:"year_built"`
	Sqft       *int      `json:"sqft"`
	PhotoURL   string    `json:"photo_url"`
	Bedrooms   *int      `json:"bedrooms"`
	Bathrooms  *float64  `json:"bathrooms"`
	HasHOA     *bool     `json:"has_hoa"`
	OfficeName string    `json:"office_name"`
	Acres      *float64  `json:"acres"`
	ListPrice  *float64  `json:"list_price"`
	Address    Address   `json:"address"`
}

// ApplyListing overwrites every enrichable field from l.
func (o *Offer) ApplyListing(l *Listing) {
	o.YearBuilt = l.YearBuilt
	o.Sqft = l.Sqft
	o.PhotoURL = stringPtr(l.PhotoURL)
	o.Bedrooms = l.Bedrooms
	o.Bathrooms = l.Bathrooms
	o.HasHOA = l.HasHOA
	o.OfficeName = stringPtr(l.OfficeName)
	if l.Acres != nil {
		lt := *l.Acres < 1
		o.LessThanOneAcre = &lt
	} else {
		o.LessThanOneAcre = nil
	}
	o.ListPrice = l.ListPrice
	o.Address = l.Address
}

// ClearListing wipes every enrichable field.
func (o *Offer) ClearListing() {
	o.YearBuilt = nil
	o.Sqft = nil
	o.PhotoURL = nil
	o.Bedrooms = nil
	o.Bathrooms = nil
	o.HasHOA = nil
	o.OfficeName = nil
	o.LessThanOneAcre = nil
	o.ListPrice = nil
	o.Address = Address{}
}

// BuiltBefore1978 drives the lead-paint disclosure on Georgia contracts.
func (o *Offer) BuiltBefore1978() bool {
	return o.YearBuilt != nil && *o.YearBuilt < 1978
}

type NewHomePurchase struct {
	Entity
	CRMRecord
	ApplicationID            uuid.UUID  `json:"application_id"`
	OfferID                  *uuid.UUID `json:"offer_id,omitempty"`
	Address                  Address    `json:"address"`
	ContractPrice            *float64   `json:"contract_price,omitempty"`
	EarnestDepositPercentage *float64   `json:"earnest_deposit_percentage,omitempty"`
	ReassignedContract       bool       `json:"reassigned_contract"`
	OptionPeriodEndDate      *Date      `json:"option_period_end_date,omitempty"`
	HomewardCloseDate        *Date      `json:"homeward_close_date,omitempty"`
	CustomerCloseDate        *Date      `json:"customer_close_date,omitempty"`
	Rent                     *Rent      `json:"rent,omitempty"`
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
