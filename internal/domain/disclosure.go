package domain

import (
	"time"

	"github.com/google/uuid"
)

type Disclosure struct {
	Entity
	Name                   string          `json:"name"`
	Type                   DisclosureType  `json:"type"`
	DocumentURL            string          `json:"document_url,omitempty"`
	BuyingState            string          `json:"buying_state,omitempty"`
	SellingState           string          `json:"selling_state,omitempty"`
	BuyingAgentBrokerageID *uuid.UUID      `json:"buying_agent_brokerage_id,omitempty"`
	ProductOffering        ProductOffering `json:"product_offering,omitempty"`
	Active                 bool            `json:"active"`
}

type Acknowledgement struct {
	Entity
	ApplicationID  uuid.UUID  `json:"application_id"`
	DisclosureID   uuid.UUID  `json:"disclosure_id"`
	IsAcknowledged bool       `json:"is_acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// SetAcknowledged records the customer's answer. AcknowledgedAt is stamped
// on the first false→true transition and never changes afterwards.
func (a *Acknowledgement) SetAcknowledged(v bool, now time.Time) {
	a.IsAcknowledged = v
	if v && a.AcknowledgedAt == nil {
		t := now
		a.AcknowledgedAt = &t
	}
}

// NewServiceAgreementAcknowledgedDate is the latest acknowledgement time over
// service-agreement disclosures, or nil when none was acknowledged.
func NewServiceAgreementAcknowledgedDate(acks []Acknowledgement, disclosures map[uuid.UUID]Disclosure) *time.Time {
	var latest *time.Time
	for i := range acks {
		a := acks[i]
		d, ok := disclosures[a.DisclosureID]
		if !ok || d.Type != DisclosureServiceAgreement || !a.IsAcknowledged || a.AcknowledgedAt == nil {
			continue
		}
		if latest == nil || a.AcknowledgedAt.After(*latest) {
			t := *a.AcknowledgedAt
			latest = &t
		}
	}
	return latest
}
