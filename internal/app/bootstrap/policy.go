package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/hospital-bed-platform/internal/config"
	"github.com/wolfman30/hospital-bed-platform/internal/policy"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// BuildPolicyLookup wires the optional policy lookup used to justify
// recommendations. It returns a nil lookup when enrichment is disabled; the
// returned close func is always safe to call.
func BuildPolicyLookup(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (policy.Lookup, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch cfg.PolicyProvider {
	case "", "none", "disabled":
		return nil, noop, nil
	case "bedrock":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			logger.Warn("policy provider is bedrock but model id empty; disabling")
			return nil, noop, nil
		}
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: aws config required for bedrock policy lookup")
		}
		logger.Info("policy lookup enabled", "provider", "bedrock", "model", model)
		return policy.NewBedrockLookup(bedrockruntime.NewFromConfig(*awsCfg), model), noop, nil
	case "gemini":
		lookup, err := policy.NewGeminiLookup(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini policy lookup: %w", err)
		}
		logger.Info("policy lookup enabled", "provider", "gemini", "model", cfg.GeminiModelID)
		return lookup, func() { _ = lookup.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown policy provider %q", cfg.PolicyProvider)
	}
}
