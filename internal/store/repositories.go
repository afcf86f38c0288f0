package store

import (
	"context"
	"strings"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/port"

	"github.com/google/uuid"
)

// ============================================================
// Customers, agents, brokerages
// ============================================================

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return get[domain.Customer](ctx, s.db, TableCustomers, "customer", id)
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return findOne[domain.Customer](ctx, s.db, TableCustomers, "customer", email, Eq("email", email))
}

func (s *Store) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	return s.put(ctx, TableCustomers, c)
}

func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	return get[domain.Agent](ctx, s.db, TableAgents, "agent", id)
}

func (s *Store) GetAgentBySalesforceID(ctx context.Context, sfid string) (*domain.Agent, error) {
	return findOne[domain.Agent](ctx, s.db, TableAgents, "agent", sfid, Eq("salesforce_id", sfid))
}

// FindAgents matches agents by email or normalized phone.
func (s *Store) FindAgents(ctx context.Context, email, phone string) ([]domain.Agent, error) {
	var anyOf []Cond
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		anyOf = append(anyOf, Eq("email", email))
	}
	if phone = domain.NormalizePhone(phone); phone != "" {
		anyOf = append(anyOf, Eq("phone", phone))
	}
	if len(anyOf) == 0 {
		return nil, nil
	}
	return find[domain.Agent](ctx, s.db, TableAgents, Query{Where: []Cond{Or(anyOf...)}, OrderBy: "created_at"})
}

// FindCertifiedAgentConflicts returns other certified agents sharing a's
// email, phone or CRM id.
func (s *Store) FindCertifiedAgentConflicts(ctx context.Context, a *domain.Agent) ([]domain.Agent, error) {
	var anyOf []Cond
	if a.Email != "" {
		anyOf = append(anyOf, Eq("email", a.Email))
	}
	if a.Phone != "" {
		anyOf = append(anyOf, Eq("phone", a.Phone))
	}
	if a.SalesforceID != "" {
		anyOf = append(anyOf, Eq("salesforce_id", a.SalesforceID))
	}
	if len(anyOf) == 0 {
		return nil, nil
	}
	where := []Cond{Eq("is_certified", true), Or(anyOf...)}
	if a.ID != uuid.Nil {
		where = append(where, Not(Eq("id", a.ID)))
	}
	return find[domain.Agent](ctx, s.db, TableAgents, Query{Where: where})
}

func (s *Store) SaveAgent(ctx context.Context, a *domain.Agent) error {
	return s.put(ctx, TableAgents, a)
}

func (s *Store) GetBrokerage(ctx context.Context, id uuid.UUID) (*domain.Brokerage, error) {
	return get[domain.Brokerage](ctx, s.db, TableBrokerages, "brokerage", id)
}

func (s *Store) ListBrokerages(ctx context.Context) ([]domain.Brokerage, error) {
	return find[domain.Brokerage](ctx, s.db, TableBrokerages, Query{OrderBy: "name"})
}

func (s *Store) SaveBrokerage(ctx context.Context, b *domain.Brokerage) error {
	return s.put(ctx, TableBrokerages, b)
}

// ============================================================
// Current homes & applications
// ============================================================

func (s *Store) GetCurrentHome(ctx context.Context, id uuid.UUID) (*domain.CurrentHome, error) {
	return get[domain.CurrentHome](ctx, s.db, TableCurrentHomes, "current home", id)
}

func (s *Store) GetCurrentHomeByApplication(ctx context.Context, appID uuid.UUID) (*domain.CurrentHome, error) {
	return findOne[domain.CurrentHome](ctx, s.db, TableCurrentHomes, "current home", appID.String(), Eq("application_id", appID))
}

func (s *Store) SaveCurrentHome(ctx context.Context, h *domain.CurrentHome) error {
	return s.put(ctx, TableCurrentHomes, h)
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return get[domain.Application](ctx, s.db, TableApplications, "application", id)
}

func (s *Store) GetApplicationBySalesforceID(ctx context.Context, sfid string) (*domain.Application, error) {
	return findOne[domain.Application](ctx, s.db, TableApplications, "application", sfid, Eq("salesforce_id", sfid))
}

func (s *Store) GetApplicationsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Application, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals := make([]any, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, id)
	}
	return find[domain.Application](ctx, s.db, TableApplications, Query{Where: []Cond{In("id", vals...)}})
}

var addressParts = []string{"street", "city", "state", "zip"}

// ListApplications applies the list filters. The address search is a true
// disjunction over every part of both application addresses.
func (s *Store) ListApplications(ctx context.Context, f port.ApplicationFilter) ([]domain.Application, int, error) {
	ctx, span := tracer.Start(ctx, "Store.ListApplications")
	defer span.End()

	var where []Cond
	if len(f.Stages) > 0 {
		vals := make([]any, 0, len(f.Stages))
		for _, st := range f.Stages {
			vals = append(vals, string(st))
		}
		where = append(where, In("stage", vals...))
	}
	if f.ProductOffering != "" {
		where = append(where, Eq("product_offering", string(f.ProductOffering)))
	}
	if q := strings.TrimSpace(f.Address); q != "" {
		var anyOf []Cond
		for _, prefix := range []string{"home_buying_location", "offer_address"} {
			for _, part := range addressParts {
				anyOf = append(anyOf, Contains(prefix+"."+part, q))
			}
		}
		where = append(where, Or(anyOf...))
	}
	if f.CreatedFrom != nil {
		where = append(where, Gte("created_at", f.CreatedFrom.String()))
	}
	if f.CreatedTo != nil {
		// Inclusive upper bound: anything before the next day.
		next := domain.NewDate(f.CreatedTo.AddDate(0, 0, 1))
		where = append(where, Lt("created_at", next.String()))
	}
	if !f.IncludeArchived {
		where = append(where, Not(HasElement("filter_status", string(domain.FilterArchived))))
	}
	if f.CustomerID != nil {
		where = append(where, Eq("customer_id", *f.CustomerID))
	}
	if f.AgentID != nil {
		where = append(where, Or(Eq("buying_agent_id", *f.AgentID), Eq("listing_agent_id", *f.AgentID)))
	}

	total, err := s.db.Count(ctx, TableApplications, where...)
	if err != nil {
		return nil, 0, err
	}
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	apps, err := find[domain.Application](ctx, s.db, TableApplications, Query{
		Where:   where,
		OrderBy: "created_at",
		Desc:    true,
		Limit:   size,
		Offset:  (page - 1) * size,
	})
	return apps, total, err
}

func (s *Store) SaveApplication(ctx context.Context, a *domain.Application) error {
	return s.put(ctx, TableApplications, a)
}

// ============================================================
// Application satellites
// ============================================================

func (s *Store) GetMortgageLender(ctx context.Context, id uuid.UUID) (*domain.MortgageLender, error) {
	return get[domain.MortgageLender](ctx, s.db, TableMortgageLenders, "mortgage lender", id)
}

func (s *Store) SaveMortgageLender(ctx context.Context, m *domain.MortgageLender) error {
	return s.put(ctx, TableMortgageLenders, m)
}

func (s *Store) GetPreApproval(ctx context.Context, id uuid.UUID) (*domain.PreApproval, error) {
	return get[domain.PreApproval](ctx, s.db, TablePreApprovals, "pre-approval", id)
}

func (s *Store) GetPreApprovalByApplication(ctx context.Context, appID uuid.UUID) (*domain.PreApproval, error) {
	return findOne[domain.PreApproval](ctx, s.db, TablePreApprovals, "pre-approval", appID.String(), Eq("application_id", appID))
}

func (s *Store) SavePreApproval(ctx context.Context, p *domain.PreApproval) error {
	return s.put(ctx, TablePreApprovals, p)
}

func (s *Store) GetSupportUser(ctx context.Context, id uuid.UUID) (*domain.InternalSupportUser, error) {
	return get[domain.InternalSupportUser](ctx, s.db, TableSupportUsers, "support user", id)
}

func (s *Store) GetSupportUserByEmail(ctx context.Context, email string) (*domain.InternalSupportUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return findOne[domain.InternalSupportUser](ctx, s.db, TableSupportUsers, "support user", email, Eq("email", email))
}

func (s *Store) SaveSupportUser(ctx context.Context, u *domain.InternalSupportUser) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return s.put(ctx, TableSupportUsers, u)
}

func (s *Store) AddStageHistory(ctx context.Context, h *domain.StageHistory) error {
	return s.put(ctx, TableStageHistory, h)
}

func (s *Store) ListStageHistory(ctx context.Context, appID uuid.UUID) ([]domain.StageHistory, error) {
	return find[domain.StageHistory](ctx, s.db, TableStageHistory, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at"})
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return get[domain.User](ctx, s.db, TableUsers, "user", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return findOne[domain.User](ctx, s.db, TableUsers, "user", email, Eq("email", email))
}

func (s *Store) SaveUser(ctx context.Context, u *domain.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return s.put(ctx, TableUsers, u)
}

func (s *Store) SaveNote(ctx context.Context, n *domain.Note) error {
	return s.put(ctx, TableNotes, n)
}

func (s *Store) ListNotes(ctx context.Context, appID uuid.UUID) ([]domain.Note, error) {
	return find[domain.Note](ctx, s.db, TableNotes, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at", Desc: true})
}

// ============================================================
// Disclosures & acknowledgements
// ============================================================

func (s *Store) GetDisclosure(ctx context.Context, id uuid.UUID) (*domain.Disclosure, error) {
	return get[domain.Disclosure](ctx, s.db, TableDisclosures, "disclosure", id)
}

func (s *Store) ListActiveDisclosures(ctx context.Context) ([]domain.Disclosure, error) {
	return find[domain.Disclosure](ctx, s.db, TableDisclosures, Query{Where: []Cond{Eq("active", true)}, OrderBy: "created_at"})
}

func (s *Store) GetDisclosuresByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Disclosure, error) {
	out := make(map[uuid.UUID]domain.Disclosure, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals := make([]any, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, id)
	}
	ds, err := find[domain.Disclosure](ctx, s.db, TableDisclosures, Query{Where: []Cond{In("id", vals...)}})
	if err != nil {
		return nil, err
	}
	for _, d := range ds {
		out[d.ID] = d
	}
	return out, nil
}

func (s *Store) SaveDisclosure(ctx context.Context, d *domain.Disclosure) error {
	d.BuyingState = strings.ToUpper(d.BuyingState)
	d.SellingState = strings.ToUpper(d.SellingState)
	return s.put(ctx, TableDisclosures, d)
}

func (s *Store) GetAcknowledgement(ctx context.Context, id uuid.UUID) (*domain.Acknowledgement, error) {
	return get[domain.Acknowledgement](ctx, s.db, TableAcknowledgements, "acknowledgement", id)
}

func (s *Store) ListAcknowledgements(ctx context.Context, appID uuid.UUID) ([]domain.Acknowledgement, error) {
	return find[domain.Acknowledgement](ctx, s.db, TableAcknowledgements, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at"})
}

func (s *Store) SaveAcknowledgement(ctx context.Context, a *domain.Acknowledgement) error {
	return s.put(ctx, TableAcknowledgements, a)
}

func (s *Store) DeleteAcknowledgement(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Delete(ctx, TableAcknowledgements, Eq("id", id))
	return err
}

// ============================================================
// Tasks
// ============================================================

func (s *Store) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return find[domain.Task](ctx, s.db, TableTasks, Query{OrderBy: "order"})
}

func (s *Store) SaveTask(ctx context.Context, t *domain.Task) error {
	return s.put(ctx, TableTasks, t)
}

func (s *Store) ListTaskDependencies(ctx context.Context) ([]domain.TaskDependency, error) {
	return find[domain.TaskDependency](ctx, s.db, TableTaskDependencies, Query{})
}

func (s *Store) SaveTaskDependency(ctx context.Context, d *domain.TaskDependency) error {
	return s.put(ctx, TableTaskDependencies, d)
}

func (s *Store) GetTaskStatus(ctx context.Context, id uuid.UUID) (*domain.TaskStatus, error) {
	return get[domain.TaskStatus](ctx, s.db, TableTaskStatuses, "task status", id)
}

func (s *Store) ListTaskStatuses(ctx context.Context, appID uuid.UUID) ([]domain.TaskStatus, error) {
	return find[domain.TaskStatus](ctx, s.db, TableTaskStatuses, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at"})
}

func (s *Store) SaveTaskStatus(ctx context.Context, st *domain.TaskStatus) error {
	return s.put(ctx, TableTaskStatuses, st)
}

func (s *Store) DeleteTaskStatus(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Delete(ctx, TableTaskStatuses, Eq("id", id))
	return err
}

// ============================================================
// Offers, purchases, pricing
// ============================================================

func (s *Store) GetOffer(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	return get[domain.Offer](ctx, s.db, TableOffers, "offer", id)
}

func (s *Store) GetOfferBySalesforceID(ctx context.Context, sfid string) (*domain.Offer, error) {
	return findOne[domain.Offer](ctx, s.db, TableOffers, "offer", sfid, Eq("salesforce_id", sfid))
}

func (s *Store) ListOffers(ctx context.Context, appID uuid.UUID) ([]domain.Offer, error) {
	return find[domain.Offer](ctx, s.db, TableOffers, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at"})
}

// ListOffersClosingBetween returns offers whose closing date is in [from, to].
func (s *Store) ListOffersClosingBetween(ctx context.Context, from, to domain.Date) ([]domain.Offer, error) {
	next := domain.NewDate(to.AddDate(0, 0, 1))
	return find[domain.Offer](ctx, s.db, TableOffers, Query{
		Where:   []Cond{Gte("closing_date", from.String()), Lt("closing_date", next.String())},
		OrderBy: "closing_date",
	})
}

func (s *Store) SaveOffer(ctx context.Context, o *domain.Offer) error {
	return s.put(ctx, TableOffers, o)
}

func (s *Store) GetNewHomePurchase(ctx context.Context, id uuid.UUID) (*domain.NewHomePurchase, error) {
	return get[domain.NewHomePurchase](ctx, s.db, TableNewHomePurchases, "new home purchase", id)
}

func (s *Store) GetNewHomePurchaseBySalesforceID(ctx context.Context, sfid string) (*domain.NewHomePurchase, error) {
	return findOne[domain.NewHomePurchase](ctx, s.db, TableNewHomePurchases, "new home purchase", sfid, Eq("salesforce_id", sfid))
}

func (s *Store) SaveNewHomePurchase(ctx context.Context, n *domain.NewHomePurchase) error {
	return s.put(ctx, TableNewHomePurchases, n)
}

func (s *Store) GetPricing(ctx context.Context, id uuid.UUID) (*domain.Pricing, error) {
	return get[domain.Pricing](ctx, s.db, TablePricings, "pricing", id)
}

func (s *Store) ListPricingsByAgent(ctx context.Context, agentID uuid.UUID) ([]domain.Pricing, error) {
	return find[domain.Pricing](ctx, s.db, TablePricings, Query{Where: []Cond{Eq("agent_id", agentID)}, OrderBy: "created_at", Desc: true})
}

func (s *Store) SavePricing(ctx context.Context, p *domain.Pricing) error {
	return s.put(ctx, TablePricings, p)
}

// ============================================================
// Loans & follow-ups
// ============================================================

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return get[domain.Loan](ctx, s.db, TableLoans, "loan", id)
}

func (s *Store) GetLoanByBlendID(ctx context.Context, blendID string) (*domain.Loan, error) {
	return findOne[domain.Loan](ctx, s.db, TableLoans, "loan", blendID, Eq("blend_loan_id", blendID))
}

func (s *Store) ListLoansByApplication(ctx context.Context, appID uuid.UUID) ([]domain.Loan, error) {
	return find[domain.Loan](ctx, s.db, TableLoans, Query{Where: []Cond{Eq("application_id", appID)}, OrderBy: "created_at", Desc: true})
}

func (s *Store) ListLoansWithStatusPrefix(ctx context.Context, prefix string) ([]domain.Loan, error) {
	return find[domain.Loan](ctx, s.db, TableLoans, Query{Where: []Cond{HasPrefix("blend_status", prefix)}, OrderBy: "created_at"})
}

func (s *Store) SaveLoan(ctx context.Context, l *domain.Loan) error {
	return s.put(ctx, TableLoans, l)
}

func (s *Store) GetFollowup(ctx context.Context, id uuid.UUID) (*domain.Followup, error) {
	return get[domain.Followup](ctx, s.db, TableFollowups, "followup", id)
}

func (s *Store) GetFollowupByBlendID(ctx context.Context, blendID string) (*domain.Followup, error) {
	return findOne[domain.Followup](ctx, s.db, TableFollowups, "followup", blendID, Eq("blend_followup_id", blendID))
}

func (s *Store) SaveFollowup(ctx context.Context, f *domain.Followup) error {
	return s.put(ctx, TableFollowups, f)
}

// ============================================================
// Contract templates
// ============================================================

func (s *Store) FindContractTemplate(ctx context.Context, state, propertyType, contractType string) (*domain.ContractTemplate, error) {
	key := strings.Join([]string{state, propertyType, contractType}, "/")
	return findOne[domain.ContractTemplate](ctx, s.db, TableContractTemplates, "contract template", key,
		Eq("buying_state", strings.ToUpper(state)),
		Eq("property_type", propertyType),
		Eq("contract_type", contractType),
		Eq("active", true),
	)
}

func (s *Store) SaveContractTemplate(ctx context.Context, t *domain.ContractTemplate) error {
	t.BuyingState = strings.ToUpper(t.BuyingState)
	return s.put(ctx, TableContractTemplates, t)
}
