package domain

import (
	"fmt"
	"time"
)

// Blend follow-up types with a provider-computed description.
const (
	FollowupSystem          = "SYSTEM"
	FollowupPaystubs        = "PAYSTUBS"
	FollowupTaxReturn       = "TAX_RETURN"
	FollowupW2              = "W2"
	FollowupDocumentRequest = "DOCUMENT_REQUEST"
)

// BlendFollowup is one element of the mortgage provider's follow-up list.
type BlendFollowup struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"applicationId"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	RequestedDate *time.Time     `json:"requestedDate,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// Description derives the human-readable description by follow-up type.
func (f *BlendFollowup) Description() string {
	return FollowupDescription(f.Type, f.Context)
}

// FollowupDescription: SYSTEM→context.description, PAYSTUBS→"Paystubs",
// TAX_RETURN→context.taxReturnYear, W2→context.w2Year,
// DOCUMENT_REQUEST→context.document.title. Other types have none.
func FollowupDescription(typ string, ctx map[string]any) string {
	switch typ {
	case FollowupSystem:
		return contextString(ctx, "description")
	case FollowupPaystubs:
		return "Paystubs"
	case FollowupTaxReturn:
		return contextString(ctx, "taxReturnYear")
	case FollowupW2:
		return contextString(ctx, "w2Year")
	case FollowupDocumentRequest:
		doc, _ := ctx["document"].(map[string]any)
		return contextString(doc, "title")
	}
	return ""
}

func contextString(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	switch v := ctx[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers such as a tax year.
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

// ApplyTo copies the provider's view onto f and reports whether anything changed.
func (b *BlendFollowup) ApplyTo(f *Followup) bool {
	desc := b.Description()
	changed := f.Type != b.Type || f.Status != b.Status || f.Description != desc ||
		!timePtrEqual(f.RequestedDate, b.RequestedDate)
	f.BlendFollowupID = b.ID
	f.Type = b.Type
	f.Status = b.Status
	f.Description = desc
	f.RequestedDate = b.RequestedDate
	return changed
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
