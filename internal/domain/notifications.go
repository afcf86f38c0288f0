package domain

import "github.com/google/uuid"

// EmailTemplate identifies a transactional email. Template ids at the
// provider are configured per environment.
type EmailTemplate string

const (
	EmailStageApproved           EmailTemplate = "stage_approved"
	EmailStageQualified          EmailTemplate = "stage_qualified"
	EmailStageOptionPeriod       EmailTemplate = "stage_option_period"
	EmailStageHomewardPurchase   EmailTemplate = "stage_homeward_purchase"
	EmailStageCustomerClosed     EmailTemplate = "stage_customer_closed"
	EmailPartnerWelcomeCustomer  EmailTemplate = "partner_welcome_customer"
	EmailPartnerWelcomeAgent     EmailTemplate = "partner_welcome_agent"
	EmailCMARequest              EmailTemplate = "cma_request"
	EmailAgentOfferSubmitted     EmailTemplate = "agent_offer_submitted"
	EmailCustomerOfferSubmitted  EmailTemplate = "customer_offer_submitted"
	EmailUnacknowledgedAgreement EmailTemplate = "unacknowledged_service_agreement"
	EmailPurchasePriceUpdated    EmailTemplate = "purchase_price_updated"
	EmailIncompleteReminder      EmailTemplate = "incomplete_reminder"
	EmailPhotoUploadComplete     EmailTemplate = "photo_upload_complete"
	EmailCXMessage               EmailTemplate = "cx_message"
)

// EmailTemplates lists every transactional email.
var EmailTemplates = []EmailTemplate{
	EmailStageApproved, EmailStageQualified, EmailStageOptionPeriod, EmailStageHomewardPurchase,
	EmailStageCustomerClosed, EmailPartnerWelcomeCustomer, EmailPartnerWelcomeAgent, EmailCMARequest,
	EmailAgentOfferSubmitted, EmailCustomerOfferSubmitted, EmailUnacknowledgedAgreement,
	EmailPurchasePriceUpdated, EmailIncompleteReminder, EmailPhotoUploadComplete, EmailCXMessage,
}

// StageEmails maps stages that notify the customer on entry.
var StageEmails = map[ApplicationStage]EmailTemplate{
	StageApproved:         EmailStageApproved,
	StageQualified:        EmailStageQualified,
	StageOptionPeriod:     EmailStageOptionPeriod,
	StageHomewardPurchase: EmailStageHomewardPurchase,
	StageCustomerClosed:   EmailStageCustomerClosed,
}

// EmailCondition is re-checked when a delayed email is about to be sent.
type EmailCondition string

const (
	ConditionNone                  EmailCondition = ""
	ConditionApplicationIncomplete EmailCondition = "application_incomplete"
)

type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// EmailMessage is the payload of email jobs.
type EmailMessage struct {
	Template      EmailTemplate  `json:"template"`
	To            []Recipient    `json:"to"`
	Data          map[string]any `json:"data,omitempty"`
	ApplicationID *uuid.UUID     `json:"application_id,omitempty"`
	Condition     EmailCondition `json:"condition,omitempty"`
}
