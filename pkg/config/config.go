package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the keywarden server binary.
type ServerConfig struct {
	Server   ServerSettings  `yaml:"server"`
	Auth     AuthSettings    `yaml:"auth"`
	Licenses LicenseSettings `yaml:"licenses"`
	Download DownloadConfig  `yaml:"download"`
	Logging  LoggingConfig   `yaml:"logging"`
	Tracing  TracingConfig   `yaml:"tracing"`
}

type ServerSettings struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`
}

type AuthSettings struct {
	// AdminToken guards /admin routes (Bearer).
	AdminToken string `yaml:"admin_token"`
	// APIKey guards /api/generate-key (X-API-Key header).
	APIKey string `yaml:"api_key"`
}

type LicenseSettings struct {
	// KeyLabel is the decorative token embedded in generated keys.
	KeyLabel string `yaml:"key_label"`
	// FingerprintSalt namespaces fingerprint hashes between deployments.
	// Changing it orphans every stored binding.
	FingerprintSalt string `yaml:"fingerprint_salt"`
}

type DownloadConfig struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans"`
}

// AgentConfig configures the client agent binary.
type AgentConfig struct {
	Server  AgentServerSettings  `yaml:"server"`
	License AgentLicenseSettings `yaml:"license"`
	Logging LoggingConfig        `yaml:"logging"`
}

type AgentServerSettings struct {
	URL             string `yaml:"url"`
	RequestTimeout  int    `yaml:"request_timeout_s"`
	HeartbeatS      int    `yaml:"heartbeat_s"`
	RetryInitialMs  int    `yaml:"retry_initial_ms"`
	RetryMaxMs      int    `yaml:"retry_max_ms"`
	RetryMaxRetries int    `yaml:"retry_max_attempts"`
}

type AgentLicenseSettings struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"`
}

// DefaultServerConfig returns a config with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Listen: ":8080",
			DBPath: "keywarden.db",
		},
		Licenses: LicenseSettings{
			KeyLabel: "PBM",
		},
		Download: DownloadConfig{
			Dir:  "downloads",
			File: "PBMacro.exe",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// LoadServer reads server config from file with env var overrides.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if listen := os.Getenv("KEYWARDEN_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if db := os.Getenv("KEYWARDEN_DB"); db != "" {
		cfg.Server.DBPath = db
	}
	if token := os.Getenv("KEYWARDEN_ADMIN_TOKEN"); token != "" {
		cfg.Auth.AdminToken = token
	}
	if key := os.Getenv("KEYWARDEN_API_KEY"); key != "" {
		cfg.Auth.APIKey = key
	}
	if salt := os.Getenv("KEYWARDEN_FINGERPRINT_SALT"); salt != "" {
		cfg.Licenses.FingerprintSalt = salt
	}
	if level := os.Getenv("KEYWARDEN_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}

// DefaultAgentConfig returns agent defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Server: AgentServerSettings{
			URL:             "http://localhost:8080",
			RequestTimeout:  10,
			HeartbeatS:      300,
			RetryInitialMs:  500,
			RetryMaxMs:      5000,
			RetryMaxRetries: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadAgent reads agent config from file with env var overrides.
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if url := os.Getenv("KEYWARDEN_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if key := os.Getenv("KEYWARDEN_LICENSE_KEY"); key != "" {
		cfg.License.Key = key
	}
	if level := os.Getenv("KEYWARDEN_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Auth.AdminToken == "" {
		return ErrMissingAdminToken
	}
	if c.Auth.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Licenses.KeyLabel == "" {
		c.Licenses.KeyLabel = "PBM"
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

func (c *AgentConfig) Validate() error {
	if c.Server.URL == "" {
		return ErrMissingServerURL
	}
	if c.License.Key == "" && c.License.KeyFile == "" {
		return ErrMissingLicenseKey
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 10
	}
	if c.Server.HeartbeatS < 10 {
		c.Server.HeartbeatS = 10
	}
	if c.Server.RetryInitialMs <= 0 {
		c.Server.RetryInitialMs = 500
	}
	if c.Server.RetryMaxMs < c.Server.RetryInitialMs {
		c.Server.RetryMaxMs = c.Server.RetryInitialMs
	}
	if c.Server.RetryMaxRetries < 0 {
		c.Server.RetryMaxRetries = 5
	}
	return nil
}

var (
	ErrMissingAdminToken = &Error{"admin token is required"}
	ErrMissingAPIKey     = &Error{"api key is required"}
	ErrMissingServerURL  = &Error{"server URL is required"}
	ErrMissingLicenseKey = &Error{"license key is required"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
