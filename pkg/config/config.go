package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for medsim-engine.
// Configuration comes from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (passwords,
// API keys, service tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// LiveKit media server configuration
	LiveKit LiveKitConfig `yaml:"livekit"`

	// AI provider configuration (doctor replies and visit evaluation)
	AI AIConfig `yaml:"ai"`

	// Agent worker process configuration
	Agent AgentConfig `yaml:"agent"`

	// Personas holds the path to the persona fallback-utterance data file.
	Personas PersonasConfig `yaml:"personas"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// ServiceToken authenticates the doctor-agent worker against the
	// engine's internal endpoints. Empty disables the check (local dev only).
	ServiceToken string `yaml:"-" env:"AGENT_SERVICE_TOKEN"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"medsim"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"medsim_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// LiveKitConfig holds connection settings for the media server's
// room and egress services.
type LiveKitConfig struct {
	URL       string `yaml:"url" env:"LIVEKIT_URL" env-default:"http://localhost:7880"`
	APIKey    string `yaml:"-" env:"LIVEKIT_API_KEY"`
	APISecret string `yaml:"-" env:"LIVEKIT_API_SECRET"`

	// RoomEmptyTimeout bounds resource leakage from abandoned rooms:
	// the server tears a room down after it has been empty this long.
	RoomEmptyTimeout time.Duration `yaml:"room_empty_timeout" env:"LIVEKIT_ROOM_EMPTY_TIMEOUT" env-default:"10m"`

	// RequestTimeout applies to individual room/egress API calls.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"LIVEKIT_REQUEST_TIMEOUT" env-default:"10s"`

	// JoinTokenTTL is the lifetime of issued room join credentials.
	JoinTokenTTL time.Duration `yaml:"join_token_ttl" env:"LIVEKIT_JOIN_TOKEN_TTL" env-default:"2h"`
}

// AIConfig selects and configures the conversational-AI provider.
type AIConfig struct {
	// Provider is "gigachat" or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"gigachat"`

	GigaChat  GigaChatConfig  `yaml:"gigachat"`
	Anthropic AnthropicConfig `yaml:"anthropic"`

	// ChatTimeout bounds a single doctor-reply generation.
	ChatTimeout time.Duration `yaml:"chat_timeout" env:"AI_CHAT_TIMEOUT" env-default:"20s"`

	// EvaluationTimeout bounds a visit evaluation call; after it expires
	// the fallback evaluation is persisted instead.
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout" env:"AI_EVALUATION_TIMEOUT" env-default:"30s"`
}

// GigaChatConfig holds GigaChat API settings. The authorization key is
// exchanged for short-lived access tokens via the OAuth endpoint.
type GigaChatConfig struct {
	OAuthURL         string `yaml:"oauth_url" env:"GIGACHAT_OAUTH_URL" env-default:"https://ngw.devices.sberbank.ru:9443/api/v2/oauth"`
	APIURL           string `yaml:"api_url" env:"GIGACHAT_API_URL" env-default:"https://gigachat.devices.sberbank.ru/api/v1"`
	AuthorizationKey string `yaml:"-" env:"GIGACHAT_AUTHORIZATION_KEY"`
	Scope            string `yaml:"scope" env:"GIGACHAT_SCOPE" env-default:"GIGACHAT_API_PERS"`
	Model            string `yaml:"model" env:"GIGACHAT_MODEL" env-default:"GigaChat"`
}

// AnthropicConfig holds settings for the Anthropic provider alternative.
type AnthropicConfig struct {
	APIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	Model  string `yaml:"model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
}

// AgentConfig holds settings for the supervised doctor-agent worker.
type AgentConfig struct {
	// Binary is the path to the doctor-agent executable.
	Binary string `yaml:"binary" env:"AGENT_BINARY" env-default:"doctor-agent"`

	// EngineURL is the engine base URL the worker calls back into.
	EngineURL string `yaml:"engine_url" env:"AGENT_ENGINE_URL" env-default:"http://localhost:8080"`

	// StartupTimeout bounds how long the supervisor waits for the worker
	// to acknowledge readiness before treating the launch as failed.
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"AGENT_STARTUP_TIMEOUT" env-default:"15s"`
}

// PersonasConfig locates the persona fallback-utterance data file.
type PersonasConfig struct {
	Path string `yaml:"path" env:"PERSONAS_PATH" env-default:"personas.yaml"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate rejects configurations that cannot possibly work.
func (c *Config) validate() error {
	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth verification enabled but no JWKS endpoints configured")
	}
	switch c.AI.Provider {
	case "gigachat", "anthropic":
	default:
		return fmt.Errorf("unknown AI provider %q", c.AI.Provider)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
