package collect

import "strings"

const (
	configurationWorkspaceKeyConstant         = "workspace"
	configurationPathKeyConstant              = "path"
	configurationMarkedReferenceKeyConstant   = "marked_ref"
	configurationRemoteKeyConstant            = "remote"
	configurationChangelogKeyConstant         = "changelog"
	configurationRunRootKeyConstant           = "run_root"
	configurationBackendKeyConstant           = "backend"
	configurationRunIDKeyConstant             = "run_id"
	configurationRunNumberKeyConstant         = "run_number"
	configurationResultKeyConstant            = "result"
	configurationEnvironmentFormatKeyConstant = "env_format"
	configurationEnvironmentFileKeyConstant   = "env_file"
	configurationAgentURLKeyConstant          = "agent_url"
	defaultRunNumberConstant                  = 1
)

// CommandConfiguration captures persistent settings for the collect command.
type CommandConfiguration struct {
	WorkspaceRoot     string `mapstructure:"workspace"`
	Path              string `mapstructure:"path"`
	MarkedReference   string `mapstructure:"marked_ref"`
	RemoteName        string `mapstructure:"remote"`
	Changelog         bool   `mapstructure:"changelog"`
	RunRootDirectory  string `mapstructure:"run_root"`
	Backend           string `mapstructure:"backend"`
	RunID             string `mapstructure:"run_id"`
	RunNumber         int    `mapstructure:"run_number"`
	Result            string `mapstructure:"result"`
	EnvironmentFormat string `mapstructure:"env_format"`
	EnvironmentFile   string `mapstructure:"env_file"`
	AgentURL          string `mapstructure:"agent_url"`
}

// DefaultCommandConfiguration returns baseline configuration values for the collect command.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		WorkspaceRoot:     defaultWorkspaceRootConstant,
		RemoteName:        defaultRemoteNameConstant,
		RunRootDirectory:  defaultRunRootDirectoryConstant,
		Backend:           string(BackendCLI),
		RunID:             defaultRunIDConstant,
		RunNumber:         defaultRunNumberConstant,
		Result:            string(BuildResultSuccess),
		EnvironmentFormat: string(EnvironmentFormatDotenv),
	}
}

// DefaultConfigurationValues produces Viper defaults for the collect command under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + "." + configurationWorkspaceKeyConstant:         defaults.WorkspaceRoot,
		rootKey + "." + configurationPathKeyConstant:              defaults.Path,
		rootKey + "." + configurationMarkedReferenceKeyConstant:   defaults.MarkedReference,
		rootKey + "." + configurationRemoteKeyConstant:            defaults.RemoteName,
		rootKey + "." + configurationChangelogKeyConstant:         defaults.Changelog,
		rootKey + "." + configurationRunRootKeyConstant:           defaults.RunRootDirectory,
		rootKey + "." + configurationBackendKeyConstant:           defaults.Backend,
		rootKey + "." + configurationRunIDKeyConstant:             defaults.RunID,
		rootKey + "." + configurationRunNumberKeyConstant:         defaults.RunNumber,
		rootKey + "." + configurationResultKeyConstant:            defaults.Result,
		rootKey + "." + configurationEnvironmentFormatKeyConstant: defaults.EnvironmentFormat,
		rootKey + "." + configurationEnvironmentFileKeyConstant:   defaults.EnvironmentFile,
		rootKey + "." + configurationAgentURLKeyConstant:          defaults.AgentURL,
	}
}

// sanitize trims whitespace and applies defaults to unset configuration values.
func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.WorkspaceRoot = trimOrDefault(configuration.WorkspaceRoot, defaults.WorkspaceRoot)
	sanitized.Path = strings.TrimSpace(configuration.Path)
	sanitized.MarkedReference = strings.TrimSpace(configuration.MarkedReference)
	sanitized.RemoteName = trimOrDefault(configuration.RemoteName, defaults.RemoteName)
	sanitized.RunRootDirectory = trimOrDefault(configuration.RunRootDirectory, defaults.RunRootDirectory)
	sanitized.Backend = trimOrDefault(configuration.Backend, defaults.Backend)
	sanitized.RunID = trimOrDefault(configuration.RunID, defaults.RunID)
	if sanitized.RunNumber <= 0 {
		sanitized.RunNumber = defaults.RunNumber
	}
	sanitized.Result = string(ParseBuildResult(configuration.Result))
	sanitized.EnvironmentFormat = trimOrDefault(configuration.EnvironmentFormat, defaults.EnvironmentFormat)
	sanitized.EnvironmentFile = strings.TrimSpace(configuration.EnvironmentFile)
	sanitized.AgentURL = strings.TrimSpace(configuration.AgentURL)

	return sanitized
}

func trimOrDefault(value string, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return defaultValue
	}
	return trimmed
}
