package domain

// ============================================================
// Shapes exchanged with internal microservices
// ============================================================

// PartnerConfig is the branding returned by the partner service for a slug.
type PartnerConfig struct {
	Slug         string `json:"slug"`
	DisplayName  string `json:"display_name"`
	LogoURL      string `json:"logo_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	AgentEmail   string `json:"agent_email,omitempty"`
}

// DirectoryAgent is an agent record in the agent service.
type DirectoryAgent struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Company      string `json:"company,omitempty"`
	SalesforceID string `json:"salesforce_id,omitempty"`
}

// SSOUser is a user in the SSO directory.
type SSOUser struct {
	ID        string   `json:"id,omitempty"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Groups    []string `json:"groups,omitempty"`
}
