package records

import "strings"

const (
	configurationDriverKeyConstant = "driver"
	configurationDSNKeyConstant    = "dsn"
	configurationRunIDKeyConstant  = "run_id"
	configurationFormatKeyConstant = "format"
	defaultDSNConstant             = ".gitcollect/records.db"
	defaultRunIDConstant           = "local"
)

// Configuration selects the database holding build records.
type Configuration struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	RunID  string `mapstructure:"run_id"`
	Format string `mapstructure:"format"`
}

// DefaultConfiguration returns the SQLite store under the workspace metadata directory, printing the local run as YAML.
func DefaultConfiguration() Configuration {
	return Configuration{
		Driver: string(DriverSQLite),
		DSN:    defaultDSNConstant,
		RunID:  defaultRunIDConstant,
		Format: string(FormatYAML),
	}
}

// DefaultConfigurationValues produces Viper defaults for the record store under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationDriverKeyConstant: defaults.Driver,
		rootKey + "." + configurationDSNKeyConstant:    defaults.DSN,
		rootKey + "." + configurationRunIDKeyConstant:  defaults.RunID,
		rootKey + "." + configurationFormatKeyConstant: defaults.Format,
	}
}

func (configuration Configuration) sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration
	sanitized.Driver = strings.ToLower(strings.TrimSpace(configuration.Driver))
	if len(sanitized.Driver) == 0 {
		sanitized.Driver = defaults.Driver
	}
	sanitized.DSN = strings.TrimSpace(configuration.DSN)
	if len(sanitized.DSN) == 0 && Driver(sanitized.Driver) == DriverSQLite {
		sanitized.DSN = defaults.DSN
	}
	sanitized.RunID = strings.TrimSpace(configuration.RunID)
	if len(sanitized.RunID) == 0 {
		sanitized.RunID = defaults.RunID
	}
	sanitized.Format = strings.ToLower(strings.TrimSpace(configuration.Format))
	if len(sanitized.Format) == 0 {
		sanitized.Format = defaults.Format
	}
	return sanitized
}
