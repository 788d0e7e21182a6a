package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; backend
// connection settings (vector/graph/embedder) require a process restart to
// take effect, since the underlying client objects are constructed once at
// startup.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel
	LLMProviderChanged bool
	NewLLMProvider     string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.LLM.Name != new.LLM.Name {
		d.LLMProviderChanged = true
		d.NewLLMProvider = new.LLM.Name
	}

	return d
}
