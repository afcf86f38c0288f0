package store

// Table names.
const (
	TableCustomers         = "customers"
	TableAgents            = "agents"
	TableBrokerages        = "brokerages"
	TableCurrentHomes      = "current_homes"
	TableApplications      = "applications"
	TableMortgageLenders   = "mortgage_lenders"
	TablePreApprovals      = "pre_approvals"
	TableSupportUsers      = "support_users"
	TableStageHistory      = "stage_history"
	TableUsers             = "users"
	TableNotes             = "notes"
	TableDisclosures       = "disclosures"
	TableAcknowledgements  = "acknowledgements"
	TableTasks             = "tasks"
	TableTaskDependencies  = "task_dependencies"
	TableTaskStatuses      = "task_statuses"
	TableOffers            = "offers"
	TableNewHomePurchases  = "new_home_purchases"
	TablePricings          = "pricings"
	TableLoans             = "loans"
	TableFollowups         = "followups"
	TableContractTemplates = "contract_templates"
)

// TableDef lists the unique keys of a table. A key whose fields are all
// empty is not enforced, so optional external ids may repeat while unset.
type TableDef struct {
	Name   string
	Unique [][]string
}

// Tables mirrors the unique indexes of schema.sql for backends that cannot
// rely on the database to enforce them.
var Tables = []TableDef{
	{Name: TableCustomers, Unique: [][]string{{"email"}}},
	{Name: TableAgents},
	{Name: TableBrokerages, Unique: [][]string{{"salesforce_id"}}},
	{Name: TableCurrentHomes, Unique: [][]string{{"application_id"}}},
	{Name: TableApplications, Unique: [][]string{{"salesforce_id"}}},
	{Name: TableMortgageLenders, Unique: [][]string{{"application_id"}}},
	{Name: TablePreApprovals, Unique: [][]string{{"application_id"}}},
	{Name: TableSupportUsers, Unique: [][]string{{"email"}}},
	{Name: TableStageHistory},
	{Name: TableUsers, Unique: [][]string{{"email"}}},
	{Name: TableNotes},
	{Name: TableDisclosures, Unique: [][]string{{"type", "buying_state", "selling_state", "buying_agent_brokerage_id", "active", "product_offering"}}},
	{Name: TableAcknowledgements, Unique: [][]string{{"application_id", "disclosure_id"}}},
	{Name: TableTasks, Unique: [][]string{{"name"}}},
	{Name: TableTaskDependencies, Unique: [][]string{{"task_id", "depends_on_id"}}},
	{Name: TableTaskStatuses, Unique: [][]string{{"application_id", "task_id"}}},
	{Name: TableOffers, Unique: [][]string{{"salesforce_id"}}},
	{Name: TableNewHomePurchases, Unique: [][]string{{"salesforce_id"}}},
	{Name: TablePricings},
	{Name: TableLoans, Unique: [][]string{{"blend_loan_id"}, {"salesforce_id"}}},
	{Name: TableFollowups, Unique: [][]string{{"blend_followup_id"}, {"salesforce_id"}}},
	{Name: TableContractTemplates},
}
