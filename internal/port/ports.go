// Package port defines interfaces (ports) for the back-office's collaborators.
// Services depend on these; infra packages implement them.
package port

import (
	"context"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/google/uuid"
)

// ApplicationFilter narrows the application list endpoint.
type ApplicationFilter struct {
	Stages          []domain.ApplicationStage
	ProductOffering domain.ProductOffering
	// Address matches street, city, state or zip of either application address.
	Address         string
	CreatedFrom     *domain.Date
	CreatedTo       *domain.Date
	IncludeArchived bool
	CustomerID      *uuid.UUID
	AgentID         *uuid.UUID
	Page            int
	PageSize        int
}

// Store is the relational store: the single source of truth.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error

	GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, c *domain.Customer) error

	GetAgent(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
	GetAgentBySalesforceID(ctx context.Context, sfid string) (*domain.Agent, error)
	FindAgents(ctx context.Context, email, phone string) ([]domain.Agent, error)
	FindCertifiedAgentConflicts(ctx context.Context, a *domain.Agent) ([]domain.Agent, error)
	SaveAgent(ctx context.Context, a *domain.Agent) error

	GetBrokerage(ctx context.Context, id uuid.UUID) (*domain.Brokerage, error)
	ListBrokerages(ctx context.Context) ([]domain.Brokerage, error)
	SaveBrokerage(ctx context.Context, b *domain.Brokerage) error

	GetCurrentHome(ctx context.Context, id uuid.UUID) (*domain.CurrentHome, error)
	GetCurrentHomeByApplication(ctx context.Context, appID uuid.UUID) (*domain.CurrentHome, error)
	SaveCurrentHome(ctx context.Context, h *domain.CurrentHome) error

	GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	GetApplicationBySalesforceID(ctx context.Context, sfid string) (*domain.Application, error)
	GetApplicationsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Application, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]domain.Application, int, error)
	SaveApplication(ctx context.Context, a *domain.Application) error

	GetMortgageLender(ctx context.Context, id uuid.UUID) (*domain.MortgageLender, error)
	SaveMortgageLender(ctx context.Context, m *domain.MortgageLender) error

	GetPreApproval(ctx context.Context, id uuid.UUID) (*domain.PreApproval, error)
	GetPreApprovalByApplication(ctx context.Context, appID uuid.UUID) (*domain.PreApproval, error)
	SavePreApproval(ctx context.Context, p *domain.PreApproval) error

	GetSupportUser(ctx context.Context, id uuid.UUID) (*domain.InternalSupportUser, error)
	GetSupportUserByEmail(ctx context.Context, email string) (*domain.InternalSupportUser, error)
	SaveSupportUser(ctx context.Context, u *domain.InternalSupportUser) error

	AddStageHistory(ctx context.Context, h *domain.StageHistory) error
	ListStageHistory(ctx context.Context, appID uuid.UUID) ([]domain.StageHistory, error)

	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	SaveUser(ctx context.Context, u *domain.User) error

	SaveNote(ctx context.Context, n *domain.Note) error
	ListNotes(ctx context.Context, appID uuid.UUID) ([]domain.Note, error)

	GetDisclosure(ctx context.Context, id uuid.UUID) (*domain.Disclosure, error)
	ListActiveDisclosures(ctx context.Context) ([]domain.Disclosure, error)
	GetDisclosuresByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Disclosure, error)
	SaveDisclosure(ctx context.Context, d *domain.Disclosure) error

	GetAcknowledgement(ctx context.Context, id uuid.UUID) (*domain.Acknowledgement, error)
	ListAcknowledgements(ctx context.Context, appID uuid.UUID) ([]domain.Acknowledgement, error)
	SaveAcknowledgement(ctx context.Context, a *domain.Acknowledgement) error
	DeleteAcknowledgement(ctx context.Context, id uuid.UUID) error

	ListTasks(ctx context.Context) ([]domain.Task, error)
	SaveTask(ctx context.Context, t *domain.Task) error
	ListTaskDependencies(ctx context.Context) ([]domain.TaskDependency, error)
	SaveTaskDependency(ctx context.Context, d *domain.TaskDependency) error

	GetTaskStatus(ctx context.Context, id uuid.UUID) (*domain.TaskStatus, error)
	ListTaskStatuses(ctx context.Context, appID uuid.UUID) ([]domain.TaskStatus, error)
	SaveTaskStatus(ctx context.Context, s *domain.TaskStatus) error
	DeleteTaskStatus(ctx context.Context, id uuid.UUID) error

	GetOffer(ctx context.Context, id uuid.UUID) (*domain.Offer, error)
	GetOfferBySalesforceID(ctx context.Context, sfid string) (*domain.Offer, error)
	ListOffers(ctx context.Context, appID uuid.UUID) ([]domain.Offer, error)
	ListOffersClosingBetween(ctx context.Context, from, to domain.Date) ([]domain.Offer, error)
	SaveOffer(ctx context.Context, o *domain.Offer) error

	GetNewHomePurchase(ctx context.Context, id uuid.UUID) (*domain.NewHomePurchase, error)
	GetNewHomePurchaseBySalesforceID(ctx context.Context, sfid string) (*domain.NewHomePurchase, error)
	SaveNewHomePurchase(ctx context.Context, n *domain.NewHomePurchase) error

	GetPricing(ctx context.Context, id uuid.UUID) (*domain.Pricing, error)
	ListPricingsByAgent(ctx context.Context, agentID uuid.UUID) ([]domain.Pricing, error)
	SavePricing(ctx context.Context, p *domain.Pricing) error

	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	GetLoanByBlendID(ctx context.Context, blendID string) (*domain.Loan, error)
	ListLoansByApplication(ctx context.Context, appID uuid.UUID) ([]domain.Loan, error)
	ListLoansWithStatusPrefix(ctx context.Context, prefix string) ([]domain.Loan, error)
	SaveLoan(ctx context.Context, l *domain.Loan) error

	GetFollowup(ctx context.Context, id uuid.UUID) (*domain.Followup, error)
	GetFollowupByBlendID(ctx context.Context, blendID string) (*domain.Followup, error)
	SaveFollowup(ctx context.Context, f *domain.Followup) error

	FindContractTemplate(ctx context.Context, state, propertyType, contractType string) (*domain.ContractTemplate, error)
	SaveContractTemplate(ctx context.Context, t *domain.ContractTemplate) error

	// SetSalesforceIDIfEmpty records the CRM id returned by the first
	// successful publication; it never overwrites an existing id.
	SetSalesforceIDIfEmpty(ctx context.Context, kind domain.EntityKind, id uuid.UUID, sfid string) (bool, error)
	SetSyncState(ctx context.Context, kind domain.EntityKind, id uuid.UUID, state domain.SyncState, syncErr string) error

	EnqueueJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// CRM upserts objects in Salesforce.
type CRM interface {
	// Upsert PATCHes object/sfid when sfid is set, otherwise POSTs and
	// returns the new id.
	Upsert(ctx context.Context, object, sfid string, fields map[string]any) (string, error)
}

// MortgageProvider reads follow-ups from Blend.
type MortgageProvider interface {
	ListFollowups(ctx context.Context, blendApplicationID string) ([]domain.BlendFollowup, error)
}

// Mailer sends a provider template with merge fields.
type Mailer interface {
	Send(ctx context.Context, templateID string, to []domain.Recipient, data map[string]any) error
}

// ObjectStore stores images and contract PDFs.
type ObjectStore interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// PropertyData is the property-data aggregator.
type PropertyData interface {
	GetListing(ctx context.Context, listingUUID uuid.UUID) (*domain.Listing, error)
}

// PartnerConfigs fetches partner branding by slug.
type PartnerConfigs interface {
	GetPartnerConfig(ctx context.Context, slug string) (*domain.PartnerConfig, error)
}

// AgentDirectory is the internal agent service.
type AgentDirectory interface {
	SearchAgents(ctx context.Context, query string) ([]domain.DirectoryAgent, error)
	CreateAgent(ctx context.Context, a *domain.DirectoryAgent) (*domain.DirectoryAgent, error)
	UpdateAgent(ctx context.Context, id string, a *domain.DirectoryAgent) (*domain.DirectoryAgent, error)
}

// SSO is the user directory.
type SSO interface {
	CreateUser(ctx context.Context, u *domain.SSOUser) (*domain.SSOUser, error)
	AddToGroups(ctx context.Context, userID string, groups []string) error
	ResendVerifyEmail(ctx context.Context, email string) error
}

// FormFiller fills PDF form fields.
type FormFiller interface {
	Fill(ctx context.Context, template []byte, fields map[string]any) ([]byte, error)
}

// Cache is a generic key/value cache.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
