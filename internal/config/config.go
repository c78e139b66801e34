package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM        LLMConfig         `mapstructure:"llm"`
	Server     ServerConfig      `mapstructure:"server"`
	History    HistoryConfig     `mapstructure:"history"`
	Persona    PersonaConfig     `mapstructure:"persona"`
	MCPServers []MCPServerConfig `mapstructure:"mcp_servers"`
	Log        LogConfig         `mapstructure:"log"`
	Telemetry  TelemetryConfig   `mapstructure:"telemetry"`
}

// LLMConfig holds the completion provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	TopP        float32       `mapstructure:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 string        `mapstructure:"port"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins"`
	AllowedOriginPattern string        `mapstructure:"allowed_origin_pattern"`
	FrontendURL          string        `mapstructure:"frontend_url"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// Origins returns the allowed origins with the frontend URL appended once.
func (s ServerConfig) Origins() []string {
	origins := slices.Clone(s.AllowedOrigins)
	frontend := strings.TrimRight(strings.TrimSpace(s.FrontendURL), "/")
	if frontend != "" && !slices.Contains(origins, frontend) {
		origins = append(origins, frontend)
	}
	return origins
}

// HistoryConfig holds the conversation store configuration
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
	Limit  int    `mapstructure:"limit"`
}

// PersonaConfig describes where the system prompt comes from.
type PersonaConfig struct {
	Name          string `mapstructure:"name"`
	Rules         string `mapstructure:"rules"`
	Knowledge     string `mapstructure:"knowledge"`
	KnowledgeFile string `mapstructure:"knowledge_file"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ClientType is the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// MCPServerConfig describes an MCP server contributing knowledge prompts.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

const envPrefix = "PORTFOLIO_CHAT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "meta-llama/llama-3.3-70b-instruct")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.allowed_origin_pattern", "")
	v.SetDefault("server.frontend_url", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("history.db_path", "chat_history.db")
	v.SetDefault("history.limit", 20)

	v.SetDefault("persona.name", "")
	v.SetDefault("persona.rules", "")
	v.SetDefault("persona.knowledge", "")
	v.SetDefault("persona.knowledge_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Load reads configuration from CONFIG_PATH (or ./config.yaml when present)
// and the environment. A missing default config file is not an error.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load with an explicit config file path. An empty path falls
// back to an optional config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", envPrefix+"_LLM_API_KEY", "OPENROUTER_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("server.frontend_url", envPrefix+"_SERVER_FRONTEND_URL", "FRONTEND_URL"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "openrouter", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unsupported provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model: required"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("llm.max_tokens: must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout: must be positive"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature: %v out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		errs = append(errs, fmt.Errorf("llm.top_p: %v out of range (0, 1]", c.LLM.TopP))
	}
	// A zero write timeout means none; otherwise the reply must fit inside it.
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.LLM.Timeout {
		errs = append(errs, fmt.Errorf("server.write_timeout: %s must exceed llm.timeout %s", c.Server.WriteTimeout, c.LLM.Timeout))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, errors.New("history.limit: must be positive"))
	}
	if c.History.DBPath == "" {
		errs = append(errs, errors.New("history.db_path: required"))
	}
	if c.Server.AllowedOriginPattern != "" {
		if _, err := regexp.Compile(c.Server.AllowedOriginPattern); err != nil {
			errs = append(errs, fmt.Errorf("server.allowed_origin_pattern: %w", err))
		}
	}
	return errors.Join(errs...)
}
