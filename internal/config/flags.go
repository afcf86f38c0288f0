package config

import (
	"fmt"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
	"go.uber.org/zap"
)

const (
	LDConnectionTimeout = 5 * time.Second
	ldContextKind       = "service"
	ldContextKey        = "backoffice"

	flagUseNewPricingUpdates         = "use-new-pricing-updates"
	flagValidatePreferredClosingDate = "validate-preferred-closing-date"
)

// FlagSource evaluates boolean feature flags.
type FlagSource interface {
	BoolVariation(key string, context ldcontext.Context, defaultVal bool) (bool, error)
}

// LoadFeatureFlags overlays LaunchDarkly values on the env defaults. It is
// a no-op when no SDK key is configured.
func (c *Config) LoadFeatureFlags(logger *zap.Logger) error {
	if c.LDSDKKey == "" {
		logger.Info("feature flags from environment",
			zap.Bool(flagUseNewPricingUpdates, c.Flags.UseNewPricingUpdates),
			zap.Bool(flagValidatePreferredClosingDate, c.Flags.ValidatePreferredClosingDate),
		)
		return nil
	}
	client, err := ld.MakeClient(c.LDSDKKey, LDConnectionTimeout)
	if err != nil {
		return fmt.Errorf("create launchdarkly client: %w", err)
	}
	defer client.Close()
	return c.applyFlags(client, logger)
}

func (c *Config) applyFlags(src FlagSource, logger *zap.Logger) error {
	ctx := ldcontext.NewWithKind(ldcontext.Kind(ldContextKind), ldContextKey+"-"+c.Env)

	pricing, err := src.BoolVariation(flagUseNewPricingUpdates, ctx, c.Flags.UseNewPricingUpdates)
	if err != nil {
		return fmt.Errorf("retrieve %s flag: %w", flagUseNewPricingUpdates, err)
	}
	closing, err := src.BoolVariation(flagValidatePreferredClosingDate, ctx, c.Flags.ValidatePreferredClosingDate)
	if err != nil {
		return fmt.Errorf("retrieve %s flag: %w", flagValidatePreferredClosingDate, err)
	}
	c.Flags = Flags{UseNewPricingUpdates: pricing, ValidatePreferredClosingDate: closing}

	logger.Debug("feature flags from launchdarkly",
		zap.Bool(flagUseNewPricingUpdates, pricing),
		zap.Bool(flagValidatePreferredClosingDate, closing),
	)
	return nil
}
