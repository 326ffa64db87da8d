// Package config is the configuration surface: a YAML spec file, environment
// overrides, and functional options, all collapsing to working defaults when
// absent.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
	"github.com/Really-Great-Tech/expense-ai-sub001/internal/orchestration"
)

// Judge providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderScripted  = "scripted"
)

// JudgeConfig names one judge: a provider, a model identifier, a sampling
// temperature, and free-form provider parameters.
type JudgeConfig struct {
	Provider    string         `yaml:"provider" json:"provider"`
	Model       string         `yaml:"model" json:"model"`
	Temperature float64        `yaml:"temperature" json:"temperature"`
	Parameters  map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Spec is the YAML file shape. Omitted fields take defaults; bools are
// pointers so absence is distinguishable from false.
type Spec struct {
	Judges                  []JudgeConfig `yaml:"judges"`
	Parallel                *bool         `yaml:"parallel"`
	DimensionConcurrency    int           `yaml:"dimension_concurrency"`
	JudgeConcurrency        int           `yaml:"judge_concurrency"`
	JobConcurrency          int           `yaml:"job_concurrency"`
	CallsPerSecond          float64       `yaml:"calls_per_second"`
	FallbackToSequential    *bool         `yaml:"fallback_to_sequential"`
	MinSuccessfulDimensions *int          `yaml:"min_successful_dimensions"`
}

// DefaultSpec returns the three-judge default panel with parallel mode on.
func DefaultSpec() *Spec {
	return &Spec{
		Judges: []JudgeConfig{
			{Provider: ProviderAnthropic, Model: "claude-3-5-sonnet-latest", Temperature: 0.0},
			{Provider: ProviderAnthropic, Model: "claude-3-5-sonnet-latest", Temperature: 0.7},
			{Provider: ProviderOpenAI, Model: "gpt-4o", Temperature: 0.2},
		},
	}
}

// LoadSpec reads a YAML spec file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if len(spec.Judges) == 0 {
		spec.Judges = DefaultSpec().Judges
	}
	return &spec, nil
}

// Env holds environment overrides. Pointer fields stay nil when the variable
// is unset, so they never mask a file or default value by accident.
type Env struct {
	AnthropicAPIKey string   `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string   `env:"OPENAI_API_KEY"`
	Parallel        *bool    `env:"EXPENSEVAL_PARALLEL, noinit"`
	CallsPerSecond  *float64 `env:"EXPENSEVAL_CALLS_PER_SECOND, noinit"`
}

// LoadEnv reads the recognized environment variables.
func LoadEnv(ctx context.Context) (*Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

// Config resolves spec, environment, and options into one read-only view.
type Config struct {
	spec       *Spec
	env        *Env
	verbose    bool
	outputPath string
}

// Option configures a Config.
type Option func(*Config)

// WithVerbose enables progress output.
func WithVerbose(verbose bool) Option {
	return func(c *Config) { c.verbose = verbose }
}

// WithOutputPath sets where the CLI writes summary JSON.
func WithOutputPath(path string) Option {
	return func(c *Config) { c.outputPath = path }
}

// WithEnv injects pre-loaded environment overrides.
func WithEnv(env *Env) Option {
	return func(c *Config) {
		if env != nil {
			c.env = env
		}
	}
}

// New builds a Config. A nil spec means all defaults.
func New(spec *Spec, opts ...Option) *Config {
	if spec == nil {
		spec = DefaultSpec()
	}
	c := &Config{spec: spec, env: &Env{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Spec returns the underlying spec.
func (c *Config) Spec() *Spec { return c.spec }

// Verbose reports whether progress output is enabled.
func (c *Config) Verbose() bool { return c.verbose }

// OutputPath returns where summary JSON is written, empty for stdout.
func (c *Config) OutputPath() string { return c.outputPath }

// Parallel resolves parallel mode: env beats file beats the default (on).
func (c *Config) Parallel() bool {
	if c.env.Parallel != nil {
		return *c.env.Parallel
	}
	if c.spec.Parallel != nil {
		return *c.spec.Parallel
	}
	return true
}

// DimensionConcurrency resolves the level-1 bound.
func (c *Config) DimensionConcurrency() int {
	if c.spec.DimensionConcurrency >= 1 {
		return c.spec.DimensionConcurrency
	}
	return orchestration.DefaultDimensionConcurrency
}

// JudgeConcurrency resolves the level-2 bound.
func (c *Config) JudgeConcurrency() int {
	if c.spec.JudgeConcurrency >= 1 {
		return c.spec.JudgeConcurrency
	}
	return orchestration.DefaultJudgeConcurrency
}

// JobConcurrency resolves the level-3 bound.
func (c *Config) JobConcurrency() int {
	if c.spec.JobConcurrency >= 1 {
		return c.spec.JobConcurrency
	}
	return orchestration.DefaultJobConcurrency
}

// CallsPerSecond resolves the shared rate limit.
func (c *Config) CallsPerSecond() float64 {
	if c.env.CallsPerSecond != nil && *c.env.CallsPerSecond > 0 {
		return *c.env.CallsPerSecond
	}
	if c.spec.CallsPerSecond > 0 {
		return c.spec.CallsPerSecond
	}
	return orchestration.DefaultCallsPerSecond
}

// FallbackToSequential resolves the degrade policy, default on.
func (c *Config) FallbackToSequential() bool {
	if c.spec.FallbackToSequential != nil {
		return *c.spec.FallbackToSequential
	}
	return true
}

// MinSuccessfulDimensions resolves the degradation threshold.
func (c *Config) MinSuccessfulDimensions() int {
	if c.spec.MinSuccessfulDimensions != nil && *c.spec.MinSuccessfulDimensions >= 0 {
		return *c.spec.MinSuccessfulDimensions
	}
	return orchestration.DefaultMinDimensions
}

// retryParams are optional per-judge transport-retry parameters, decoded out
// of the free-form Parameters map.
type retryParams struct {
	MaxRetries    int `mapstructure:"max_retries"`
	BaseBackoffMs int `mapstructure:"base_backoff_ms"`
}

// scriptedParams configure the scripted test provider.
type scriptedParams struct {
	Responses []string `mapstructure:"responses"`
}

// BuildJudges constructs one chat client per configured judge, wiring API
// keys from the environment and wrapping transport retries when configured.
func (c *Config) BuildJudges() ([]llm.Client, error) {
	judges := make([]llm.Client, 0, len(c.spec.Judges))
	for i, jc := range c.spec.Judges {
		client, err := c.buildJudge(jc)
		if err != nil {
			return nil, fmt.Errorf("judge %d (%s/%s): %w", i, jc.Provider, jc.Model, err)
		}
		judges = append(judges, client)
	}
	return judges, nil
}

func (c *Config) buildJudge(jc JudgeConfig) (llm.Client, error) {
	if jc.Model == "" {
		return nil, fmt.Errorf("model identifier is required")
	}

	var client llm.Client
	switch jc.Provider {
	case ProviderAnthropic, "":
		if c.env.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		client = llm.NewAnthropicClient(c.env.AnthropicAPIKey, jc.Model, jc.Temperature)
	case ProviderOpenAI:
		if c.env.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		client = llm.NewOpenAIClient(c.env.OpenAIAPIKey, jc.Model, jc.Temperature)
	case ProviderScripted:
		var params scriptedParams
		if err := mapstructure.Decode(jc.Parameters, &params); err != nil {
			return nil, fmt.Errorf("decoding scripted parameters: %w", err)
		}
		client = llm.NewScriptedClient(jc.Model, params.Responses...)
	default:
		return nil, fmt.Errorf("unknown provider %q", jc.Provider)
	}

	if len(jc.Parameters) > 0 {
		var retry retryParams
		if err := mapstructure.Decode(jc.Parameters, &retry); err != nil {
			return nil, fmt.Errorf("decoding retry parameters: %w", err)
		}
		if retry.MaxRetries > 0 {
			cfg := llm.DefaultRetryConfig()
			cfg.MaxRetries = retry.MaxRetries
			if retry.BaseBackoffMs > 0 {
				cfg.BaseBackoff = time.Duration(retry.BaseBackoffMs) * time.Millisecond
			}
			client = llm.NewRetryingClient(client, cfg)
		}
	}
	return client, nil
}

// OrchestratorOptions translates the resolved configuration into
// orchestrator options.
func (c *Config) OrchestratorOptions() []orchestration.Option {
	return []orchestration.Option{
		orchestration.WithParallel(c.Parallel()),
		orchestration.WithDimensionConcurrency(c.DimensionConcurrency()),
		orchestration.WithJudgeConcurrency(c.JudgeConcurrency()),
		orchestration.WithJobConcurrency(c.JobConcurrency()),
		orchestration.WithCallsPerSecond(c.CallsPerSecond()),
		orchestration.WithFallback(c.FallbackToSequential()),
		orchestration.WithMinSuccessfulDimensions(c.MinSuccessfulDimensions()),
	}
}
