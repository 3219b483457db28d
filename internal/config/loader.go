package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the provider names the default registry knows.
// [Validate] warns about unrecognised names instead of failing, so that
// custom registrations keep working.
var ValidProviderNames = []string{
	"gemini", "openai", "anthropic", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, fmt.Errorf("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name, assuming a custom registration",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.Model == "" {
		errs = append(errs, fmt.Errorf("provider.model is required"))
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider.temperature %.2f is out of range [0, 2]", cfg.Provider.Temperature))
	}
	if cfg.Provider.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("provider.max_tokens must not be negative, got %d", cfg.Provider.MaxTokens))
	}

	for i, fb := range cfg.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("fallbacks[%d].name is required", i))
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("fallbacks[%d].model is required", i))
		}
		if fb.Temperature < 0 || fb.Temperature > 2 {
			errs = append(errs, fmt.Errorf("fallbacks[%d].temperature %.2f is out of range [0, 2]", i, fb.Temperature))
		}
	}

	if cfg.Paths.CharactersDir == "" {
		errs = append(errs, fmt.Errorf("paths.characters_dir is required"))
	}
	if cfg.Paths.SceneFile == "" {
		errs = append(errs, fmt.Errorf("paths.scene_file is required"))
	}
	if cfg.Paths.PromptsDir == "" {
		errs = append(errs, fmt.Errorf("paths.prompts_dir is required"))
	}
	if cfg.Paths.LogDir == "" {
		errs = append(errs, fmt.Errorf("paths.log_dir is required"))
	}

	if cfg.Server.Enabled && cfg.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("server.listen_addr is required when the server is enabled"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured log level onto its [slog.Level] value.
// Unknown levels map to [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
