package agent

import "strings"

const (
	configurationListenKeyConstant    = "listen"
	configurationWorkspaceKeyConstant = "workspace"
	defaultListenAddressConstant      = ":7878"
	defaultWorkspaceConstant          = "."
)

// Configuration describes where the agent listens and which directory it serves.
type Configuration struct {
	Listen    string `mapstructure:"listen"`
	Workspace string `mapstructure:"workspace"`
}

// DefaultConfiguration listens on port 7878 serving the working directory.
func DefaultConfiguration() Configuration {
	return Configuration{
		Listen:    defaultListenAddressConstant,
		Workspace: defaultWorkspaceConstant,
	}
}

// DefaultConfigurationValues produces Viper defaults for the agent under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + "." + configurationListenKeyConstant:    defaults.Listen,
		rootKey + "." + configurationWorkspaceKeyConstant: defaults.Workspace,
	}
}

func (configuration Configuration) sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration
	sanitized.Listen = strings.TrimSpace(configuration.Listen)
	if len(sanitized.Listen) == 0 {
		sanitized.Listen = defaults.Listen
	}
	sanitized.Workspace = strings.TrimSpace(configuration.Workspace)
	if len(sanitized.Workspace) == 0 {
		sanitized.Workspace = defaults.Workspace
	}
	return sanitized
}
