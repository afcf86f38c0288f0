package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port           int
	LogLevel       string
	Env            string
	AllowedOrigins []string

	// Storage
	DatabaseURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Auth
	JWTSecret      string
	JWTAccessTTL   time.Duration
	WebhookKeyHash string

	// Internal services
	SSOBaseURL        string
	SSOServiceToken   string
	OAuthBaseURL      string
	OAuthClientID     string
	OAuthClientSecret string
	AgentServiceURL   string
	PropertyDataURL   string
	PartnerURL        string

	Salesforce SalesforceConfig
	Blend      BlendConfig
	AWS        AWSConfig
	SendGrid   SendGridConfig
	Queue      QueueConfig

	ImagesBucket            string
	ContractsBucket         string
	ContractTemplatesBucket string
	ContractPollTimeout     time.Duration

	CustomerOnboardingURL string
	AgentOnboardingURL    string

	ClosingCapacityPerDay int

	// LaunchDarkly; flags fall back to env defaults without it.
	LDSDKKey string
	Flags    Flags
}

type SalesforceConfig struct {
	LoginURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
	APIVersion    string
}

type BlendConfig struct {
	APIURL       string
	APIKey       string
	Instance     string
	APIVersion   string
	ProxyURL     string
	PollingHours int
	MaxRetries   int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Sandbox   bool
	Templates map[domain.EmailTemplate]string
}

type QueueConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Lease        time.Duration
}

// Flags are the feature toggles read at startup.
type Flags struct {
	UseNewPricingUpdates         bool
	ValidatePreferredClosingDate bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Env:            getEnv("ENV", "development"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret:      getEnv("JWT_SECRET", "backoffice-dev-secret-change-me"),
		JWTAccessTTL:   getEnvDuration("JWT_ACCESS_TTL", time.Hour),
		WebhookKeyHash: getEnv("WEBHOOK_API_KEY_HASH", ""),

		SSOBaseURL:        getEnv("SSO_BASE_URL", "http://localhost:8091"),
		SSOServiceToken:   getEnv("SSO_SERVICE_TOKEN", ""),
		OAuthBaseURL:      getEnv("OAUTH_BASE_URL", ""),
		OAuthClientID:     getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
		AgentServiceURL:   getEnv("AGENT_SERVICE_URL", "http://localhost:8092"),
		PropertyDataURL:   getEnv("PDA_URL", "http://localhost:8093"),
		PartnerURL:        getEnv("PARTNER_URL", "http://localhost:8094"),

		Salesforce: SalesforceConfig{
			LoginURL:      getEnv("SALESFORCE_LOGIN_URL", "https://login.salesforce.com"),
			ClientID:      getEnv("SALESFORCE_CLIENT_ID", ""),
			ClientSecret:  getEnv("SALESFORCE_CLIENT_SECRET", ""),
			Username:      getEnv("SALESFORCE_USERNAME", ""),
			Password:      getEnv("SALESFORCE_PASSWORD", ""),
			SecurityToken: getEnv("SALESFORCE_SECURITY_TOKEN", ""),
			APIVersion:    getEnv("SALESFORCE_API_VERSION", "v59.0"),
		},
		Blend: BlendConfig{
			APIURL:       getEnv("BLEND_API_URL", "https://api.blendlabs.com"),
			APIKey:       getEnv("BLEND_API_KEY", ""),
			Instance:     getEnv("BLEND_INSTANCE", ""),
			APIVersion:   getEnv("BLEND_API_VERSION", "5.3.0"),
			ProxyURL:     getEnv("BLEND_PROXY_URL", ""),
			PollingHours: getEnvInt("BLEND_POLLING_HOURS", 4),
			MaxRetries:   getEnvInt("BLEND_MAX_RETRIES", 3),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
		},
		SendGrid: SendGridConfig{
			APIKey:    getEnv("SENDGRID_API_KEY", ""),
			FromEmail: getEnv("SENDGRID_FROM_EMAIL", "no-reply@homeward.com"),
			FromName:  getEnv("SENDGRID_FROM_NAME", "Homeward"),
			Sandbox:   getEnvBool("SENDGRID_SANDBOX_MODE", false),
			Templates: emailTemplates(),
		},
		Queue: QueueConfig{
			Workers:      getEnvInt("QUEUE_WORKERS", 4),
			PollInterval: getEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
			MaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 8),
			BaseBackoff:  getEnvDuration("QUEUE_BASE_BACKOFF", 5*time.Second),
			MaxBackoff:   getEnvDuration("QUEUE_MAX_BACKOFF", 30*time.Minute),
			Lease:        getEnvDuration("QUEUE_LEASE", 5*time.Minute),
		},

		ImagesBucket:            getEnv("IMAGES_BUCKET", "homeward-images"),
		ContractsBucket:         getEnv("CONTRACTS_BUCKET", "homeward-contracts"),
		ContractTemplatesBucket: getEnv("CONTRACT_TEMPLATES_BUCKET", "homeward-contract-templates"),
		ContractPollTimeout:     getEnvDuration("CONTRACT_POLL_TIMEOUT", 25*time.Second),

		CustomerOnboardingURL: getEnv("ONBOARDING_CUSTOMER_URL", "https://app.homeward.com/onboarding"),
		AgentOnboardingURL:    getEnv("ONBOARDING_AGENT_URL", "https://agents.homeward.com/onboarding"),

		ClosingCapacityPerDay: getEnvInt("CLOSING_CAPACITY_PER_DAY", 16),

		LDSDKKey: getEnv("LD_SDK_KEY", ""),
		Flags: Flags{
			UseNewPricingUpdates:         getEnvBool("USE_NEW_PRICING_UPDATES", true),
			ValidatePreferredClosingDate: getEnvBool("VALIDATE_PREFERRED_CLOSING_DATE", true),
		},
	}
}

// emailTemplates reads SENDGRID_TEMPLATE_<NAME> for every known email.
func emailTemplates() map[domain.EmailTemplate]string {
	out := make(map[domain.EmailTemplate]string, len(domain.EmailTemplates))
	for _, t := range domain.EmailTemplates {
		if id := getEnv("SENDGRID_TEMPLATE_"+strings.ToUpper(string(t)), ""); id != "" {
			out[t] = id
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
