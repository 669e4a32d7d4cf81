// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvironmentKind selects the environment implementation.
type EnvironmentKind string

// SolverKind selects the task-level policy that drives the agent.
type SolverKind string

// AgentKind selects the agent implementation.
type AgentKind string

// ClientKind selects the model-client transport.
type ClientKind string

const (
	EnvironmentWebBrowser EnvironmentKind = "webbrowser"

	SolverSimple     SolverKind = "simple"
	SolverStructured SolverKind = "structured"

	AgentBrowser AgentKind = "browser"

	ClientOpenAI      ClientKind = "openai"
	ClientConvergence ClientKind = "convergence"
)

// UnknownKindError reports a kind value that names no known implementation.
// Component factories return it instead of falling back silently.
type UnknownKindError struct {
	Field string
	Value string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown %s kind %q", e.Field, e.Value)
}

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Environment EnvironmentConfig `mapstructure:"environment" yaml:"environment"`
	Solver      SolverConfig      `mapstructure:"solver" yaml:"solver"`
	Run         RunConfig         `mapstructure:"run" yaml:"run"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EnvironmentConfig selects and parameterizes the environment the agent acts in.
type EnvironmentConfig struct {
	Kind EnvironmentKind `mapstructure:"kind" yaml:"kind"`

	Homepage        string        `mapstructure:"homepage" yaml:"homepage"`
	ViewportWidth   int64         `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int64         `mapstructure:"viewport_height" yaml:"viewport_height"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	BrowserArgs     []string      `mapstructure:"browser_args" yaml:"browser_args"`
	ScreenshotDelay time.Duration `mapstructure:"screenshot_delay" yaml:"screenshot_delay"`

	AnnotateImage     bool `mapstructure:"annotate_image" yaml:"annotate_image"`
	IncludeHTML       bool `mapstructure:"include_html" yaml:"include_html"`
	IncludePOIText    bool `mapstructure:"include_poi_text" yaml:"include_poi_text"`
	RecordPOIs        bool `mapstructure:"record_pois" yaml:"record_pois"`
	KeepOriginalImage bool `mapstructure:"keep_original_image" yaml:"keep_original_image"`
	NoPOIsInImage     bool `mapstructure:"no_pois_in_image" yaml:"no_pois_in_image"`
}

// SolverConfig selects and parameterizes the solver.
type SolverConfig struct {
	Kind          SolverKind  `mapstructure:"kind" yaml:"kind"`
	StartWithPlan bool        `mapstructure:"start_with_plan" yaml:"start_with_plan"`
	Agent         AgentConfig `mapstructure:"agent" yaml:"agent"`
}

// AgentConfig parameterizes the agent wrapped by a solver.
type AgentConfig struct {
	Kind        AgentKind    `mapstructure:"kind" yaml:"kind"`
	Temperature float32      `mapstructure:"temperature" yaml:"temperature"`
	Seed        *int         `mapstructure:"seed" yaml:"seed"`
	Client      ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig parameterizes the model-client boundary.
type ClientConfig struct {
	Kind       ClientKind    `mapstructure:"kind" yaml:"kind"`
	ModelID    string        `mapstructure:"model_id" yaml:"model_id"`
	APIBase    string        `mapstructure:"api_base" yaml:"api_base"`
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// RunConfig carries the scalar run controls for the event loop.
type RunConfig struct {
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	EnvironmentTimeout time.Duration `mapstructure:"environment_timeout" yaml:"environment_timeout"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	SaveEveryStep      bool          `mapstructure:"save_every_step" yaml:"save_every_step"`
	OutputDir          string        `mapstructure:"output_dir" yaml:"output_dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "proxy-lite")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Environment --
	v.SetDefault("environment.kind", string(EnvironmentWebBrowser))
	v.SetDefault("environment.homepage", "https://www.google.com")
	v.SetDefault("environment.viewport_width", 1280)
	v.SetDefault("environment.viewport_height", 1080)
	v.SetDefault("environment.headless", true)
	v.SetDefault("environment.screenshot_delay", "2s")
	v.SetDefault("environment.annotate_image", true)
	v.SetDefault("environment.include_html", false)
	v.SetDefault("environment.include_poi_text", true)
	v.SetDefault("environment.record_pois", false)
	v.SetDefault("environment.keep_original_image", false)
	v.SetDefault("environment.no_pois_in_image", false)

	// -- Solver / Agent / Client --
	v.SetDefault("solver.kind", string(SolverSimple))
	v.SetDefault("solver.start_with_plan", true)
	v.SetDefault("solver.agent.kind", string(AgentBrowser))
	v.SetDefault("solver.agent.temperature", 0.0)
	v.SetDefault("solver.agent.client.kind", string(ClientConvergence))
	v.SetDefault("solver.agent.client.model_id", "convergence-ai/proxy-lite-3b")
	v.SetDefault("solver.agent.client.api_base", "http://localhost:8008/v1")
	v.SetDefault("solver.agent.client.api_timeout", "50s")

	// -- Run --
	v.SetDefault("run.max_steps", 50)
	v.SetDefault("run.action_timeout", "60s")
	v.SetDefault("run.environment_timeout", "30s")
	v.SetDefault("run.task_timeout", "1800s")
	v.SetDefault("run.save_every_step", true)
	v.SetDefault("run.output_dir", "local_trajectories")
}

// Load reads configuration from an optional yaml file plus PROXYLITE_*
// environment variables and returns the validated Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PROXYLITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars cover everything.
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("solver.agent.client.api_key", "PROXYLITE_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Environment.Kind {
	case EnvironmentWebBrowser:
	default:
		return &UnknownKindError{Field: "environment", Value: string(c.Environment.Kind)}
	}

	switch c.Solver.Kind {
	case SolverSimple, SolverStructured:
	default:
		return &UnknownKindError{Field: "solver", Value: string(c.Solver.Kind)}
	}

	switch c.Solver.Agent.Kind {
	case AgentBrowser:
	default:
		return &UnknownKindError{Field: "agent", Value: string(c.Solver.Agent.Kind)}
	}

	switch c.Solver.Agent.Client.Kind {
	case ClientOpenAI, ClientConvergence:
	default:
		return &UnknownKindError{Field: "client", Value: string(c.Solver.Agent.Client.Kind)}
	}

	if c.Run.MaxSteps < 0 {
		return fmt.Errorf("run.max_steps must not be negative, got %d", c.Run.MaxSteps)
	}
	if c.Environment.ViewportWidth <= 0 || c.Environment.ViewportHeight <= 0 {
		return fmt.Errorf("environment viewport dimensions must be positive")
	}
	return nil
}
