package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/agent"
	"github.com/temirov/gitcollect/internal/artifacts"
	"github.com/temirov/gitcollect/internal/collect"
	"github.com/temirov/gitcollect/internal/records"
	"github.com/temirov/gitcollect/internal/utils"
	pathutils "github.com/temirov/gitcollect/internal/utils/path"
)

const (
	applicationNameConstant                 = "gitcollect"
	applicationShortDescriptionConstant     = "Register repositories checked out outside the pipeline's own SCM"
	applicationLongDescriptionConstant      = "gitcollect records the revisions of additional git repositories used by a pipeline run, writes changelogs between a marked baseline and the built revision and exposes GIT_COMMIT, GIT_BRANCH and GIT_URL to later steps."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	environmentPrefixConstant               = "GITCOLLECT"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	userConfigurationSearchPathConstant     = "~/.gitcollect"
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	toolsConfigurationKeyConstant           = "tools"
	collectConfigurationKeyConstant         = toolsConfigurationKeyConstant + ".collect"
	recordsConfigurationKeyConstant         = toolsConfigurationKeyConstant + ".records"
	artifactsConfigurationKeyConstant       = toolsConfigurationKeyConstant + ".artifacts"
	agentConfigurationKeyConstant           = toolsConfigurationKeyConstant + ".agent"
	commandBuildErrorTemplateConstant       = "unable to build %s command: %w"
	collectCommandNameConstant              = "collect"
	recordsCommandNameConstant              = "records"
	agentCommandNameConstant                = "agent"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for CLI subcommands and their collaborators.
type ApplicationToolsConfiguration struct {
	Collect   collect.CommandConfiguration `mapstructure:"collect"`
	Records   records.Configuration        `mapstructure:"records"`
	Artifacts artifacts.Configuration      `mapstructure:"artifacts"`
	Agent     agent.Configuration          `mapstructure:"agent"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	homeExpander          *pathutils.HomeExpander
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() (*Application, error) {
	homeExpander := pathutils.NewHomeExpander()
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant, homeExpander.Expand(userConfigurationSearchPathConstant)},
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		homeExpander:        homeExpander,
		logger:              zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	collectBuilder := collect.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider:        application.collectConfiguration,
		RecordStoreProvider: func(executionContext context.Context) (collect.RecordStore, error) {
			return records.Open(executionContext, application.recordsConfiguration())
		},
		NotifierProvider: func(executionContext context.Context, logger *zap.Logger) (collect.Notifier, error) {
			return artifacts.NewNotifier(executionContext, application.artifactsConfiguration(), logger)
		},
		RemoteScannerProvider: agent.DialScanner,
	}
	collectCommand, collectBuildError := collectBuilder.Build()
	if collectBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, collectCommandNameConstant, collectBuildError)
	}
	cobraCommand.AddCommand(collectCommand)

	recordsBuilder := records.CommandBuilder{
		LoggerProvider:        loggerProvider,
		ConfigurationProvider: application.recordsConfiguration,
	}
	recordsCommand, recordsBuildError := recordsBuilder.Build()
	if recordsBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, recordsCommandNameConstant, recordsBuildError)
	}
	cobraCommand.AddCommand(recordsCommand)

	agentBuilder := agent.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider:        application.agentConfiguration,
	}
	agentCommand, agentBuildError := agentBuilder.Build()
	if agentBuildError != nil {
		return nil, fmt.Errorf(commandBuildErrorTemplateConstant, agentCommandNameConstant, agentBuildError)
	}
	cobraCommand.AddCommand(agentCommand)

	application.rootCommand = cobraCommand

	return application, nil
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	application, applicationError := NewApplication()
	if applicationError != nil {
		return applicationError
	}
	return application.Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for _, toolDefaults := range []map[string]any{
		collect.DefaultConfigurationValues(collectConfigurationKeyConstant),
		records.DefaultConfigurationValues(recordsConfigurationKeyConstant),
		artifacts.DefaultConfigurationValues(artifactsConfigurationKeyConstant),
		agent.DefaultConfigurationValues(agentConfigurationKeyConstant),
	} {
		for configurationKey, configurationValue := range toolDefaults {
			defaultValues[configurationKey] = configurationValue
		}
	}

	configurationFilePath := application.homeExpander.Expand(application.configurationFilePath)
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

func (application *Application) collectConfiguration() collect.CommandConfiguration {
	configuration := application.configuration.Tools.Collect
	application.homeExpander.ExpandAll(&configuration.WorkspaceRoot, &configuration.RunRootDirectory, &configuration.EnvironmentFile)
	return configuration
}

func (application *Application) recordsConfiguration() records.Configuration {
	configuration := application.configuration.Tools.Records
	application.homeExpander.ExpandAll(&configuration.DSN)
	return configuration
}

func (application *Application) artifactsConfiguration() artifacts.Configuration {
	configuration := application.configuration.Tools.Artifacts
	application.homeExpander.ExpandAll(&configuration.SigningKeyFile)
	return configuration
}

func (application *Application) agentConfiguration() agent.Configuration {
	configuration := application.configuration.Tools.Agent
	application.homeExpander.ExpandAll(&configuration.Workspace)
	return configuration
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}
	return command.Help()
}

func (application *Application) flushLogger() error {
	return application.syncLoggerInstance(application.logger)
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
