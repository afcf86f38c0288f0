package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// parseEnum accepts only members of values. Empty input is rejected too;
// callers that allow absence check for "" themselves.
func parseEnum[T ~string](field, s string, values []T) (T, error) {
	for _, v := range values {
		if string(v) == s {
			return v, nil
		}
	}
	var zero T
	allowed := make([]string, 0, len(values))
	for _, v := range values {
		allowed = append(allowed, string(v))
	}
	return zero, NewValidationError(field, fmt.Sprintf("%q is not one of [%s]", s, strings.Join(allowed, ", ")))
}

// unmarshalEnum is shared by the UnmarshalJSON methods so unknown strings are
// rejected at the decoding boundary.
func unmarshalEnum[T ~string](field string, data []byte, values []T, dst *T) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError(field, "must be a string")
	}
	if s == "" {
		*dst = ""
		return nil
	}
	v, err := parseEnum(field, s, values)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// ApplicationStage is the lifecycle stage of an Application.
type ApplicationStage string

const (
	StageIncomplete       ApplicationStage = "Incomplete"
	StageComplete         ApplicationStage = "Complete"
	StageQualified        ApplicationStage = "Qualified"
	StageApproved         ApplicationStage = "Approved"
	StageOfferRequested   ApplicationStage = "Offer Requested"
	StageOfferSubmitted   ApplicationStage = "Offer Submitted"
	StageOptionPeriod     ApplicationStage = "Option Period"
	StagePostOption       ApplicationStage = "Post Option"
	StageHomewardPurchase ApplicationStage = "Homeward Purchase"
	StageCustomerClosed   ApplicationStage = "Customer Closed"
	StageCancelled        ApplicationStage = "Cancelled"
	StageTrash            ApplicationStage = "Trash"
)

var applicationStages = []ApplicationStage{
	StageIncomplete, StageComplete, StageQualified, StageApproved, StageOfferRequested,
	StageOfferSubmitted, StageOptionPeriod, StagePostOption, StageHomewardPurchase,
	StageCustomerClosed, StageCancelled, StageTrash,
}

var (
	preApprovalStages  = []ApplicationStage{StageIncomplete, StageComplete, StageQualified}
	postApprovalStages = []ApplicationStage{StageApproved, StageOfferRequested, StageOfferSubmitted, StageOptionPeriod, StagePostOption, StageHomewardPurchase, StageCustomerClosed}
	preOfferStages     = []ApplicationStage{StageIncomplete, StageComplete, StageQualified, StageApproved}
	postOptionStages   = []ApplicationStage{StageOptionPeriod, StagePostOption, StageHomewardPurchase, StageCustomerClosed}
	inactiveStages     = []ApplicationStage{StageCustomerClosed, StageCancelled, StageTrash}
)

func ParseApplicationStage(s string) (ApplicationStage, error) {
	return parseEnum("stage", s, applicationStages)
}

func (s *ApplicationStage) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("stage", b, applicationStages, s)
}

func (s ApplicationStage) IsPreApproval() bool  { return slices.Contains(preApprovalStages, s) }
func (s ApplicationStage) IsPostApproval() bool { return slices.Contains(postApprovalStages, s) }
func (s ApplicationStage) IsPreOffer() bool     { return slices.Contains(preOfferStages, s) }
func (s ApplicationStage) IsPostOption() bool   { return slices.Contains(postOptionStages, s) }

// IsActive reports whether the application is still being worked.
func (s ApplicationStage) IsActive() bool { return !slices.Contains(inactiveStages, s) }

// ProductOffering selects between the trade-in and purchase-only products.
type ProductOffering string

const (
	ProductBuySell ProductOffering = "buy-sell"
	ProductBuyOnly ProductOffering = "buy-only"
)

var productOfferings = []ProductOffering{ProductBuySell, ProductBuyOnly}

func ParseProductOffering(s string) (ProductOffering, error) {
	return parseEnum("product_offering", s, productOfferings)
}

func (p *ProductOffering) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("product_offering", b, productOfferings, p)
}

type LeadStatus string

const (
	LeadNew         LeadStatus = "New"
	LeadNurture     LeadStatus = "Nurture"
	LeadQualified   LeadStatus = "Qualified"
	LeadUnqualified LeadStatus = "Unqualified"
	LeadConverted   LeadStatus = "Converted"
)

var leadStatuses = []LeadStatus{LeadNew, LeadNurture, LeadQualified, LeadUnqualified, LeadConverted}

func ParseLeadStatus(s string) (LeadStatus, error) {
	return parseEnum("lead_status", s, leadStatuses)
}

func (l *LeadStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("lead_status", b, leadStatuses, l)
}

type ListingStatus string

const (
	ListingNotListed      ListingStatus = "Not Listed"
	ListingListed         ListingStatus = "Listed"
	ListingUnderContract  ListingStatus = "Under Contract"
	ListingSold           ListingStatus = "Sold"
)

var listingStatuses = []ListingStatus{ListingNotListed, ListingListed, ListingUnderContract, ListingSold}

func ParseListingStatus(s string) (ListingStatus, error) {
	return parseEnum("listing_status", s, listingStatuses)
}

func (l *ListingStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("listing_status", b, listingStatuses, l)
}

// IsListedOrUnderContract is the "completed" set used by the existing-property
// and photo-upload tasks.
func (l ListingStatus) IsListedOrUnderContract() bool {
	return l == ListingListed || l == ListingUnderContract
}

type FloorPriceType string

const (
	FloorPriceRequired  FloorPriceType = "Required"
	FloorPriceNone      FloorPriceType = "None"
	FloorPriceBuyerOnly FloorPriceType = "Buyer Only"
)

var floorPriceTypes = []FloorPriceType{FloorPriceRequired, FloorPriceNone, FloorPriceBuyerOnly}

func (f *FloorPriceType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("floor_price.type", b, floorPriceTypes, f)
}

type OfferStatus string

const (
	OfferIncomplete             OfferStatus = "Incomplete"
	OfferComplete               OfferStatus = "Complete"
	OfferRequested              OfferStatus = "Requested"
	OfferMOPComplete            OfferStatus = "MOP Complete"
	OfferApproved               OfferStatus = "Approved"
	OfferBackupPositionAccepted OfferStatus = "Backup Position Accepted"
	OfferDenied                 OfferStatus = "Denied"
	OfferWon                    OfferStatus = "Won"
	OfferLost                   OfferStatus = "Lost"
	OfferCancelled              OfferStatus = "Cancelled"
	OfferContractCancelled      OfferStatus = "Contract Cancelled"
)

var offerStatuses = []OfferStatus{
	OfferIncomplete, OfferComplete, OfferRequested, OfferMOPComplete, OfferApproved,
	OfferBackupPositionAccepted, OfferDenied, OfferWon, OfferLost, OfferCancelled, OfferContractCancelled,
}

func ParseOfferStatus(s string) (OfferStatus, error) {
	return parseEnum("status", s, offerStatuses)
}

func (o *OfferStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("status", b, offerStatuses, o)
}

// CountsTowardCapacity reports whether an offer in this status holds a slot
// on its closing date.
func (o OfferStatus) CountsTowardCapacity() bool {
	switch o {
	case OfferIncomplete, OfferDenied, OfferLost, OfferCancelled, OfferContractCancelled:
		return false
	}
	return true
}

// External returns the status pushed to the CRM. Incomplete and Complete are
// internal form states and collapse to one value.
func (o OfferStatus) External() string {
	if o == OfferComplete {
		return string(OfferIncomplete)
	}
	return string(o)
}

type DisclosureType string

const (
	DisclosureTitle            DisclosureType = "title"
	DisclosureMortgage         DisclosureType = "mortgage"
	DisclosureServiceAgreement DisclosureType = "service_agreement"
	DisclosureEConsent         DisclosureType = "e_consent"
)

var disclosureTypes = []DisclosureType{DisclosureTitle, DisclosureMortgage, DisclosureServiceAgreement, DisclosureEConsent}

func (d *DisclosureType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("type", b, disclosureTypes, d)
}

type TaskCategory string

const (
	TaskRealEstateAgent  TaskCategory = "real-estate-agent"
	TaskBuyingSituation  TaskCategory = "buying-situation"
	TaskDisclosures      TaskCategory = "disclosures"
	TaskPhotoUpload      TaskCategory = "photo-upload"
	TaskExistingProperty TaskCategory = "existing-property"
	TaskLender           TaskCategory = "lender"
	TaskHomewardMortgage TaskCategory = "homeward-mortgage"
)

var taskCategories = []TaskCategory{
	TaskRealEstateAgent, TaskBuyingSituation, TaskDisclosures, TaskPhotoUpload,
	TaskExistingProperty, TaskLender, TaskHomewardMortgage,
}

func (c *TaskCategory) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("category", b, taskCategories, c)
}

type TaskProgress string

const (
	ProgressNotStarted  TaskProgress = "Not started"
	ProgressInProgress  TaskProgress = "In progress"
	ProgressCompleted   TaskProgress = "Completed"
	ProgressUnderReview TaskProgress = "Under Review"
	ProgressApproved    TaskProgress = "Approved"
	ProgressDenied      TaskProgress = "Denied"
)

var taskProgresses = []TaskProgress{
	ProgressNotStarted, ProgressInProgress, ProgressCompleted, ProgressUnderReview, ProgressApproved, ProgressDenied,
}

func ParseTaskProgress(s string) (TaskProgress, error) {
	return parseEnum("status", s, taskProgresses)
}

func (p *TaskProgress) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("status", b, taskProgresses, p)
}

type FilterStatus string

const FilterArchived FilterStatus = "Archived"

var filterStatuses = []FilterStatus{FilterArchived}

func (f *FilterStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum("filter_status", b, filterStatuses, f)
}

// WriteSource tells the write path who originated a change. CRMSync writes
// are never published back to the CRM.
type WriteSource int

const (
	SourceExternal WriteSource = iota
	SourceCRMSync
)

func (s WriteSource) String() string {
	if s == SourceCRMSync {
		return "crm_sync"
	}
	return "external"
}

// SyncState is the outbound publication lifecycle of a CRM-mirrored entity.
type SyncState string

const (
	SyncDirty     SyncState = "Dirty"
	SyncInFlight  SyncState = "InFlight"
	SyncPublished SyncState = "Published"
	SyncFailed    SyncState = "Failed"
)
