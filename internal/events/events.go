// Package events is the in-process signal bus. The write path publishes a
// typed event before and after persisting an entity; handlers subscribe per
// entity kind and phase and run in registration order.
package events

import (
	"github.com/homeward/backoffice-go/internal/domain"
)

// Kind is the entity kind an event is about.
type Kind string

const (
	KindApplication     Kind = "application"
	KindAcknowledgement Kind = "acknowledgement"
	KindOffer           Kind = "offer"
	KindPreApproval     Kind = "pre_approval"
	KindUser            Kind = "user"
	KindTaskStatus      Kind = "task_status"
)

// Phase is when an event fires relative to the write.
type Phase int

const (
	PreSave Phase = iota
	PostSave
)

func (p Phase) String() string {
	if p == PostSave {
		return "post_save"
	}
	return "pre_save"
}

// Event is the sum of the typed events below.
type Event interface {
	Kind() Kind
	EventMeta() Meta
}

// Meta is shared by every event. Changes is the explicit change set of
// the write; Created is true when no record existed before.
type Meta struct {
	Phase   Phase
	Source  domain.WriteSource
	Created bool
	Changes domain.Changes
}

func (m Meta) EventMeta() Meta { return m }

type ApplicationEvent struct {
	Meta
	Before *domain.Application
	After  *domain.Application
}

func (ApplicationEvent) Kind() Kind { return KindApplication }

type AcknowledgementEvent struct {
	Meta
	Before *domain.Acknowledgement
	After  *domain.Acknowledgement
}

func (AcknowledgementEvent) Kind() Kind { return KindAcknowledgement }

type OfferEvent struct {
	Meta
	Before *domain.Offer
	After  *domain.Offer
}

func (OfferEvent) Kind() Kind { return KindOffer }

type PreApprovalEvent struct {
	Meta
	Before *domain.PreApproval
	After  *domain.PreApproval
}

func (PreApprovalEvent) Kind() Kind { return KindPreApproval }

type UserEvent struct {
	Meta
	Before *domain.User
	After  *domain.User
}

func (UserEvent) Kind() Kind { return KindUser }

type TaskStatusEvent struct {
	Meta
	Before *domain.TaskStatus
	After  *domain.TaskStatus
}

func (TaskStatusEvent) Kind() Kind { return KindTaskStatus }
