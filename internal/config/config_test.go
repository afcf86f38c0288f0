package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CLOSING_CAPACITY_PER_DAY", "")
	t.Setenv("CONTRACT_POLL_TIMEOUT", "")
	t.Setenv("BLEND_POLLING_HOURS", "")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 16, cfg.ClosingCapacityPerDay)
	assert.Equal(t, 25*time.Second, cfg.ContractPollTimeout)
	assert.Equal(t, 4, cfg.Blend.PollingHours)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://app.homeward.test, https://agents.homeward.test,")
	t.Setenv("SENDGRID_SANDBOX_MODE", "true")
	t.Setenv("SENDGRID_TEMPLATE_CX_MESSAGE", "d-123")
	t.Setenv("QUEUE_LEASE", "90s")
	t.Setenv("VALIDATE_PREFERRED_CLOSING_DATE", "false")
	t.Setenv("MAX_RETRIES", "lots")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://app.homeward.test", "https://agents.homeward.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.SendGrid.Sandbox)
	assert.Equal(t, "d-123", cfg.SendGrid.Templates[domain.EmailCXMessage])
	assert.NotContains(t, cfg.SendGrid.Templates, domain.EmailStageApproved)
	assert.Equal(t, 90*time.Second, cfg.Queue.Lease)
	assert.False(t, cfg.Flags.ValidatePreferredClosingDate)
	assert.Equal(t, 3, cfg.MaxRetries, "unparseable values keep the default")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# local\nBACKOFFICE_TEST_A=from-file\nBACKOFFICE_TEST_B=\"quoted\"\n"), 0o600))
	t.Setenv("BACKOFFICE_TEST_A", "from-env")
	t.Setenv("BACKOFFICE_TEST_B", "")
	require.NoError(t, os.Unsetenv("BACKOFFICE_TEST_B"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("BACKOFFICE_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("BACKOFFICE_TEST_B"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

type fakeFlags struct {
	values map[string]bool
	err    error
	seen   []string
}

func (f *fakeFlags) BoolVariation(key string, _ ldcontext.Context, defaultVal bool) (bool, error) {
	f.seen = append(f.seen, key)
	if f.err != nil {
		return defaultVal, f.err
	}
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return defaultVal, nil
}

func TestApplyFlags(t *testing.T) {
	cfg := &Config{Env: "staging", Flags: Flags{UseNewPricingUpdates: true, ValidatePreferredClosingDate: true}}
	src := &fakeFlags{values: map[string]bool{flagUseNewPricingUpdates: false}}

	require.NoError(t, cfg.applyFlags(src, zap.NewNop()))
	assert.False(t, cfg.Flags.UseNewPricingUpdates)
	assert.True(t, cfg.Flags.ValidatePreferredClosingDate)
	assert.Equal(t, []string{flagUseNewPricingUpdates, flagValidatePreferredClosingDate}, src.seen)

	err := cfg.applyFlags(&fakeFlags{err: errors.New("offline")}, zap.NewNop())
	assert.ErrorContains(t, err, flagUseNewPricingUpdates)
}

func TestLoadFeatureFlags_WithoutKey(t *testing.T) {
	cfg := &Config{Flags: Flags{UseNewPricingUpdates: true}}
	require.NoError(t, cfg.LoadFeatureFlags(zap.NewNop()))
	assert.True(t, cfg.Flags.UseNewPricingUpdates)
}
