package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Loop      LoopConfig                `yaml:"loop"`
	Planner   PlannerConfig             `yaml:"planner"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Cluster   ClusterConfig             `yaml:"cluster"`
	Executor  ExecutorConfig            `yaml:"executor"`
	Policy    PolicyConfig              `yaml:"policy"`
	HTTP      HTTPConfig                `yaml:"http"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Log       LogConfig                 `yaml:"log"`
}

type AppConfig struct {
	Name string `yaml:"name"`
}

type LoopConfig struct {
	// Mode is "multistep" or "singleshot".
	Mode     string `yaml:"mode"`
	MaxSteps int    `yaml:"max_steps"`
}

type PlannerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Provider names an entry of Providers, or "heuristic". Empty picks the
	// first enabled provider.
	Provider  string `yaml:"provider"`
	Timeout   string `yaml:"timeout"`
	PromptDir string `yaml:"prompt_dir"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type ClusterConfig struct {
	InCluster  bool    `yaml:"in_cluster"`
	Kubeconfig string  `yaml:"kubeconfig"`
	Context    string  `yaml:"context"`
	Timeout    string  `yaml:"timeout"`
	QPS        float32 `yaml:"qps"`
	Burst      int     `yaml:"burst"`
}

type ExecutorConfig struct {
	DefaultLogTail int  `yaml:"default_log_tail"`
	MaxLogTail     int  `yaml:"max_log_tail"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
	Parallelism    int  `yaml:"parallelism"`
}

type PolicyConfig struct {
	// DenyNamespaces are regular expressions of namespaces never inspected.
	DenyNamespaces []string `yaml:"deny_namespaces"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Debug adds error traces to 500 responses.
	Debug bool `yaml:"debug"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
	// AllowedUsers restricts who may ask; empty allows everyone.
	AllowedUsers []string `yaml:"allowed_users,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	ModeMultiStep  = "multistep"
	ModeSingleShot = "singleshot"
)

// ValidProviders lists the supported planner backends.
var ValidProviders = []string{"heuristic", "openai", "openrouter", "gemini"}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App:  AppConfig{Name: "kubeask"},
		Loop: LoopConfig{Mode: ModeMultiStep, MaxSteps: 10},
		Planner: PlannerConfig{
			Enabled: true,
			Timeout: "30s",
		},
		Providers: map[string]ProviderConfig{
			"openai": {Model: "gpt-4o-mini"},
			"gemini": {Model: "gemini-1.5-flash"},
		},
		Cluster: ClusterConfig{Timeout: "30s"},
		Executor: ExecutorConfig{
			DefaultLogTail: 200,
			MaxLogTail:     5000,
			Parallelism:    8,
		},
		HTTP: HTTPConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
		},
		Gateways: map[string]GatewayConfig{},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	var errs []error

	if v := os.Getenv("KUBEASK_MODE"); v != "" {
		c.Loop.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_STEPS: %w", err))
		} else {
			c.Loop.MaxSteps = n
		}
	}

	// Provider API keys enable their provider.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.updateProvider("openai", func(p *ProviderConfig) { p.APIKey = key; p.Enabled = true })
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.updateProvider("gemini", func(p *ProviderConfig) { p.APIKey = key; p.Enabled = true })
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.updateProvider("gemini", func(p *ProviderConfig) { p.Model = model })
	}

	if v := os.Getenv("PLANNER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLANNER_ENABLED: %w", err))
		} else {
			c.Planner.Enabled = b
		}
	}
	if v := os.Getenv("PLANNER_PROVIDER"); v != "" {
		c.Planner.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("PLANNER_TIMEOUT"); v != "" {
		c.Planner.Timeout = v
	}
	if name, _ := c.GetDefaultProvider(); name != "" && name != "heuristic" {
		if model := os.Getenv("PLANNER_MODEL"); model != "" {
			c.updateProvider(name, func(p *ProviderConfig) { p.Model = model })
		}
		if url := os.Getenv("PLANNER_BASE_URL"); url != "" {
			c.updateProvider(name, func(p *ProviderConfig) { p.BaseURL = url })
		}
	}

	if v := os.Getenv("LOG_TAIL_DEFAULT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_TAIL_DEFAULT: %w", err))
		} else {
			c.Executor.DefaultLogTail = n
		}
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("METRICS_ENABLED: %w", err))
		} else {
			c.Executor.MetricsEnabled = b
		}
	}

	if path := os.Getenv("KUBECONFIG"); path != "" {
		c.Cluster.Kubeconfig = path
	}
	if v := os.Getenv("KUBE_IN_CLUSTER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("KUBE_IN_CLUSTER: %w", err))
		} else {
			c.Cluster.InCluster = b
		}
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		c.HTTP.Addr = addr
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		c.updateGateway("telegram", token)
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.updateGateway("discord", token)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}

	return errors.Join(errs...)
}

func (c *Config) updateProvider(name string, fn func(*ProviderConfig)) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	p := c.Providers[name]
	fn(&p)
	c.Providers[name] = p
}

func (c *Config) updateGateway(name, token string) {
	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}
	g := c.Gateways[name]
	g.Token = token
	g.Enabled = true
	c.Gateways[name] = g
}

// GetDefaultProvider returns the configured planner provider, or the first
// enabled one by name, or "heuristic" when none is enabled.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if c.Planner.Provider != "" {
		return c.Planner.Provider, c.Providers[c.Planner.Provider]
	}
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "heuristic", ProviderConfig{}
	}
	sort.Strings(names)
	return names[0], c.Providers[names[0]]
}

// GetGateway returns a chat gateway config if it is enabled and has a token.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

// PlannerTimeout returns the planner call timeout as a duration.
func (c *Config) PlannerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Planner.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ClusterTimeout returns the API server request timeout as a duration.
func (c *Config) ClusterTimeout() time.Duration {
	d, err := time.ParseDuration(c.Cluster.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Loop.Mode {
	case ModeMultiStep, ModeSingleShot:
	default:
		errs = append(errs, fmt.Errorf("invalid loop mode: %q (valid: %s, %s)", c.Loop.Mode, ModeMultiStep, ModeSingleShot))
	}
	if c.Loop.MaxSteps < 1 || c.Loop.MaxSteps > 100 {
		errs = append(errs, fmt.Errorf("max_steps must be between 1 and 100, got %d", c.Loop.MaxSteps))
	}

	for name, v := range map[string]string{"planner.timeout": c.Planner.Timeout, "cluster.timeout": c.Cluster.Timeout} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	}

	if c.Planner.Enabled {
		name, p := c.GetDefaultProvider()
		valid := false
		for _, v := range ValidProviders {
			if name == v {
				valid = true
				break
			}
		}
		switch {
		case !valid:
			errs = append(errs, fmt.Errorf("invalid planner provider: %s (valid: %v)", name, ValidProviders))
		case name != "heuristic" && p.APIKey == "":
			errs = append(errs, fmt.Errorf("planner provider %s has no API key (set OPENAI_API_KEY or GEMINI_API_KEY)", name))
		}
	}

	if c.Executor.MaxLogTail < 1 {
		errs = append(errs, fmt.Errorf("max_log_tail must be positive, got %d", c.Executor.MaxLogTail))
	}
	if c.Executor.DefaultLogTail < 1 || c.Executor.DefaultLogTail > c.Executor.MaxLogTail {
		errs = append(errs, fmt.Errorf("default_log_tail must be between 1 and max_log_tail (%d), got %d",
			c.Executor.MaxLogTail, c.Executor.DefaultLogTail))
	}
	if c.Executor.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must not be negative, got %d", c.Executor.Parallelism))
	}

	for _, pattern := range c.Policy.DenyNamespaces {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid deny_namespaces pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}
