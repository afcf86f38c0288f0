package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names a background job handled by the publication queue.
type JobKind string

const (
	JobCRMUpsert       JobKind = "crm_upsert"
	JobFollowupPublish JobKind = "followup_publish"
	JobContractPDF     JobKind = "contract_pdf"
	JobEmail           JobKind = "email"
	JobCRMInbound      JobKind = "crm_inbound"
)

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobInFlight JobStatus = "in_flight"
	JobDone     JobStatus = "done"
	JobDead     JobStatus = "dead"
)

// Job is a durable unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Kind        JobKind         `json:"kind"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EntityKind names a CRM-mirrored entity kind.
type EntityKind string

const (
	KindApplication     EntityKind = "application"
	KindAgent           EntityKind = "agent"
	KindCurrentHome     EntityKind = "current_home"
	KindOffer           EntityKind = "offer"
	KindNewHomePurchase EntityKind = "new_home_purchase"
	KindLoan            EntityKind = "loan"
	KindFollowup        EntityKind = "followup"
	KindBrokerage       EntityKind = "brokerage"
)

// EntityRef is the payload of CRM publication jobs.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// DedupeKey collapses duplicate pending publications of one entity.
func (r EntityRef) DedupeKey() string {
	return fmt.Sprintf("crm:%s:%s", r.Kind, r.ID)
}

// NewJob builds a pending job with a JSON payload.
func NewJob(kind JobKind, dedupeKey string, payload any, runAt time.Time, maxAttempts int) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		DedupeKey:   dedupeKey,
		Payload:     raw,
		Status:      JobPending,
		MaxAttempts: maxAttempts,
		RunAt:       runAt,
	}, nil
}

// InboundKind tells the inbound sync which inverse mapping a webhook element needs.
type InboundKind string

const (
	InboundApplication     InboundKind = "application"
	InboundLoan            InboundKind = "loan"
	InboundOffer           InboundKind = "offer"
	InboundNewHomePurchase InboundKind = "new_home_purchase"
)

// InboundPayload is one webhook element queued for inbound sync.
type InboundPayload struct {
	Kind InboundKind     `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// ContractResult is stored on a finished contract_pdf job.
type ContractResult struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
