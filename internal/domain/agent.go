package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Agent struct {
	Entity
	CRMRecord
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Company     string     `json:"company,omitempty"`
	IsCertified bool       `json:"is_certified"`
	BrokerageID *uuid.UUID `json:"brokerage_id,omitempty"`
}

// NormalizePhone strips every non-digit and keeps the trailing ten digits.
func NormalizePhone(s string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// FormatPhone renders a normalized phone as (NNN) NNN-NNNN. Anything that is
// not exactly ten digits is returned unchanged.
func FormatPhone(s string) string {
	if len(s) != 10 {
		return s
	}
	return fmt.Sprintf("(%s) %s-%s", s[:3], s[3:6], s[6:])
}

// FormattedPhone is the display form of the agent's phone.
func (a *Agent) FormattedPhone() string {
	return FormatPhone(a.Phone)
}

// Normalize is applied on every agent write.
func (a *Agent) Normalize() {
	a.Phone = NormalizePhone(a.Phone)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Name = strings.TrimSpace(a.Name)
}

// ValidateCertified checks the presence rules for certified agents.
// Uniqueness across certified agents needs the store and is checked by the
// agent service.
func (a *Agent) ValidateCertified() error {
	if !a.IsCertified {
		return nil
	}
	fields := map[string]string{}
	if a.Email == "" {
		fields["email"] = "required for certified agents"
	}
	if a.Phone == "" {
		fields["phone"] = "required for certified agents"
	}
	if a.SalesforceID == "" {
		fields["salesforce_id"] = "required for certified agents"
	}
	if len(fields) == 0 {
		return nil
	}
	return &ErrValidation{Field: "agent", Message: "certified agent is incomplete", Fields: fields}
}
