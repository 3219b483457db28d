// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Dramaturg simulation.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Dramaturg.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	// Provider selects and configures the LLM backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks lists alternative LLM backends tried in order when the
	// primary provider fails or its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Paths locates the simulation's data directories and files.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the optional HTTP/WebSocket front end.
	Server ServerConfig `yaml:"server"`
}

// ProviderEntry configures the LLM provider. The Name field is used to look
// up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "gemini", "openai", "anthropic", "ollama").
	Name string `yaml:"name"`

	// Model selects a specific model within the provider
	// (e.g., "gemini-2.0-flash", "gpt-4o").
	Model string `yaml:"model"`

	// APIKey is the authentication key for the provider's API. When empty,
	// the provider falls back to its environment variable
	// (GEMINI_API_KEY/GOOGLE_API_KEY, OPENAI_API_KEY, ...), which may in
	// turn come from a .env file loaded at startup.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Temperature overrides the default sampling temperature when non-zero.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps completion length when non-zero.
	MaxTokens int `yaml:"max_tokens"`
}

// PathsConfig locates the simulation inputs and outputs on disk.
type PathsConfig struct {
	// CharactersDir is the base directory of character profiles, one
	// subdirectory per character. Defaults to "characters".
	CharactersDir string `yaml:"characters_dir"`

	// SceneFile is the scene YAML declaration to simulate.
	// Defaults to "scene.yaml".
	SceneFile string `yaml:"scene_file"`

	// PromptsDir holds the prompt template files. Defaults to "prompts".
	PromptsDir string `yaml:"prompts_dir"`

	// LogDir is where scene logs are persisted. Defaults to "logs".
	LogDir string `yaml:"log_dir"`
}

// ServerConfig holds network settings for the optional HTTP front end.
type ServerConfig struct {
	// Enabled starts the HTTP/WebSocket server alongside the CLI.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address the server listens on.
	// Defaults to ":8080".
	ListenAddr string `yaml:"listen_addr"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "gemini"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gemini-2.0-flash"
	}
	if c.Paths.CharactersDir == "" {
		c.Paths.CharactersDir = "characters"
	}
	if c.Paths.SceneFile == "" {
		c.Paths.SceneFile = "scene.yaml"
	}
	if c.Paths.PromptsDir == "" {
		c.Paths.PromptsDir = "prompts"
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = "logs"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
}
