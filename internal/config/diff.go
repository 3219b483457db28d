package config

import "slices"

// ConfigDiff describes what changed between two configs. Only the log level
// can be hot-reloaded; everything else needs a restart because the engine
// and provider are constructed once at startup.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ProviderChanged bool
	PathsChanged    bool
	ServerChanged   bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.Provider != new.Provider || !slices.Equal(old.Fallbacks, new.Fallbacks) {
		d.ProviderChanged = true
	}
	if old.Paths != new.Paths {
		d.PathsChanged = true
	}
	if old.Server != new.Server {
		d.ServerChanged = true
	}

	return d
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ProviderChanged && !d.PathsChanged && !d.ServerChanged
}

// RequiresRestart reports whether any of the changes cannot be applied to a
// running process.
func (d ConfigDiff) RequiresRestart() bool {
	return d.ProviderChanged || d.PathsChanged || d.ServerChanged
}
