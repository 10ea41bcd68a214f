package collect

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/dependencies"
	"github.com/temirov/gitcollect/internal/execshell"
	"github.com/temirov/gitcollect/internal/filesystem"
	"github.com/temirov/gitcollect/internal/gitrepo"
	"github.com/temirov/gitcollect/internal/ui"
)

const (
	commandUseConstant                       = "collect [path]"
	commandShortDescriptionConstant          = "Register a repository checked out outside the pipeline"
	commandLongDescriptionConstant           = "collect resolves the marked and built revisions of a repository, optionally writes a changelog between them, registers the repository in the run's build records and prints the GIT_COMMIT, GIT_BRANCH and GIT_URL variables."
	tooManyArgumentsMessageConstant          = "collect accepts at most one path argument"
	recordStoreCloseFailedMessageConstant    = "unable to close record store"
	flagPathNameConstant                     = "path"
	flagPathDescriptionConstant              = "Repository path relative to the workspace root"
	flagMarkedCommitNameConstant             = "marked-commit"
	flagMarkedCommitDescriptionConstant      = "Baseline branch, tag or commit id used as the lower bound of the changelog"
	flagRemoteNameConstant                   = "remote"
	flagRemoteDescriptionConstant            = "Remote used for the repository URL and the remote-qualified fallback"
	flagChangelogNameConstant                = "changelog"
	flagChangelogDescriptionConstant         = "Write a changelog between the marked and built revisions"
	flagWorkspaceNameConstant                = "workspace"
	flagWorkspaceDescriptionConstant         = "Workspace root that relative paths are resolved against"
	flagRunIDNameConstant                    = "run-id"
	flagRunIDDescriptionConstant             = "Identifier of the pipeline run sharing the build records"
	flagRunNumberNameConstant                = "run-number"
	flagRunNumberDescriptionConstant         = "Number of the pipeline run recorded with each build"
	flagResultNameConstant                   = "result"
	flagResultDescriptionConstant            = "Run result recorded with the build (SUCCESS, UNSTABLE, FAILURE, NOT_BUILT, ABORTED)"
	flagBackendNameConstant                  = "backend"
	flagBackendDescriptionConstant           = "Repository client backend (cli or gogit)"
	flagAgentNameConstant                    = "agent"
	flagAgentDescriptionConstant             = "Websocket URL of a gitcollect agent that scans on its own filesystem"
	flagEnvironmentFormatNameConstant        = "env-format"
	flagEnvironmentFormatDescriptionConstant = "Format of the printed environment (dotenv, json or yaml)"
	flagEnvironmentFileNameConstant          = "env-file"
	flagEnvironmentFileDescriptionConstant   = "File receiving the environment as appended dotenv lines"
)

var errTooManyArguments = errors.New(tooManyArgumentsMessageConstant)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// RecordStoreProvider opens the record store. Stores implementing io.Closer are closed after the run.
type RecordStoreProvider func(executionContext context.Context) (RecordStore, error)

// NotifierProvider constructs the changelog notifier; a nil notifier disables notification.
type NotifierProvider func(executionContext context.Context, logger *zap.Logger) (Notifier, error)

// RemoteScannerProvider connects to a remote agent.
type RemoteScannerProvider func(executionContext context.Context, agentURL string, logger *zap.Logger) (Scanner, error)

// CommandBuilder assembles the collect cobra command with configurable dependencies.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        func() CommandConfiguration
	HumanReadableLoggingProvider func() bool
	GitExecutor                  gitrepo.GitExecutor
	CommandEventsObserver        execshell.CommandEventObserver
	FileSystem                   filesystem.FileSystem
	RecordStoreProvider          RecordStoreProvider
	NotifierProvider             NotifierProvider
	RemoteScannerProvider        RemoteScannerProvider
}

// Build constructs the collect command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagPathNameConstant, "", flagPathDescriptionConstant)
	command.Flags().String(flagMarkedCommitNameConstant, "", flagMarkedCommitDescriptionConstant)
	command.Flags().String(flagRemoteNameConstant, defaultRemoteNameConstant, flagRemoteDescriptionConstant)
	command.Flags().Bool(flagChangelogNameConstant, false, flagChangelogDescriptionConstant)
	command.Flags().String(flagWorkspaceNameConstant, defaultWorkspaceRootConstant, flagWorkspaceDescriptionConstant)
	command.Flags().String(flagRunIDNameConstant, defaultRunIDConstant, flagRunIDDescriptionConstant)
	command.Flags().Int(flagRunNumberNameConstant, defaultRunNumberConstant, flagRunNumberDescriptionConstant)
	command.Flags().String(flagResultNameConstant, string(BuildResultSuccess), flagResultDescriptionConstant)
	command.Flags().String(flagBackendNameConstant, string(BackendCLI), flagBackendDescriptionConstant)
	command.Flags().String(flagAgentNameConstant, "", flagAgentDescriptionConstant)
	command.Flags().String(flagEnvironmentFormatNameConstant, string(EnvironmentFormatDotenv), flagEnvironmentFormatDescriptionConstant)
	command.Flags().String(flagEnvironmentFileNameConstant, "", flagEnvironmentFileDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 1 {
		return errTooManyArguments
	}

	configuration := builder.resolveConfiguration(command, arguments)
	backend, backendError := ParseBackend(configuration.Backend)
	if backendError != nil {
		return backendError
	}
	environmentFormat, formatError := ParseEnvironmentFormat(configuration.EnvironmentFormat)
	if formatError != nil {
		return formatError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	logger := dependencies.ResolveLogger(builder.resolveLogger())
	fileSystem := dependencies.ResolveFileSystem(builder.FileSystem)

	scanner, scannerError := builder.resolveScanner(executionContext, configuration, logger, fileSystem)
	if scannerError != nil {
		return scannerError
	}

	if closer, closable := scanner.(io.Closer); closable {
		defer closer.Close()
	}

	recordStore, storeError := builder.resolveRecordStore(executionContext)
	if storeError != nil {
		return storeError
	}
	if closer, closable := recordStore.(io.Closer); closable {
		defer func() {
			if closeError := closer.Close(); closeError != nil {
				logger.Warn(recordStoreCloseFailedMessageConstant, zap.Error(closeError))
			}
		}()
	}

	notifier, notifierError := builder.resolveNotifier(executionContext, logger)
	if notifierError != nil {
		return notifierError
	}

	publishers := PublisherChain{WriterPublisher{Writer: command.OutOrStdout(), Format: environmentFormat}}
	if len(configuration.EnvironmentFile) > 0 {
		publishers = append(publishers, FilePublisher{FileSystem: fileSystem, Path: configuration.EnvironmentFile})
	}

	service, serviceError := NewService(ServiceDependencies{
		Logger:      logger,
		Scanner:     scanner,
		Notifier:    notifier,
		RecordStore: recordStore,
		Publisher:   publishers,
	})
	if serviceError != nil {
		return serviceError
	}

	_, collectError := service.Collect(executionContext, Options{
		WorkspaceRoot:    configuration.WorkspaceRoot,
		Path:             configuration.Path,
		MarkedReference:  configuration.MarkedReference,
		RemoteName:       configuration.RemoteName,
		Changelog:        configuration.Changelog,
		RunRootDirectory: configuration.RunRootDirectory,
		Backend:          backend,
		RunID:            configuration.RunID,
		RunNumber:        configuration.RunNumber,
		Result:           BuildResult(configuration.Result),
	})
	return collectError
}

// resolveConfiguration applies changed flags and the positional path over the provided configuration.
func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command, arguments []string) CommandConfiguration {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	flags := command.Flags()
	overrideString := func(flagName string, target *string) {
		if flags.Changed(flagName) {
			*target, _ = flags.GetString(flagName)
		}
	}
	overrideString(flagPathNameConstant, &configuration.Path)
	overrideString(flagMarkedCommitNameConstant, &configuration.MarkedReference)
	overrideString(flagRemoteNameConstant, &configuration.RemoteName)
	overrideString(flagWorkspaceNameConstant, &configuration.WorkspaceRoot)
	overrideString(flagRunIDNameConstant, &configuration.RunID)
	overrideString(flagResultNameConstant, &configuration.Result)
	overrideString(flagBackendNameConstant, &configuration.Backend)
	overrideString(flagAgentNameConstant, &configuration.AgentURL)
	overrideString(flagEnvironmentFormatNameConstant, &configuration.EnvironmentFormat)
	overrideString(flagEnvironmentFileNameConstant, &configuration.EnvironmentFile)
	if flags.Changed(flagChangelogNameConstant) {
		configuration.Changelog, _ = flags.GetBool(flagChangelogNameConstant)
	}
	if flags.Changed(flagRunNumberNameConstant) {
		configuration.RunNumber, _ = flags.GetInt(flagRunNumberNameConstant)
	}
	if len(arguments) == 1 {
		configuration.Path = arguments[0]
	}

	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	return builder.LoggerProvider()
}

func (builder *CommandBuilder) resolveScanner(executionContext context.Context, configuration CommandConfiguration, logger *zap.Logger, fileSystem filesystem.FileSystem) (Scanner, error) {
	if len(configuration.AgentURL) > 0 {
		if builder.RemoteScannerProvider == nil {
			return nil, ErrRemoteScannerNotConfigured
		}
		return builder.RemoteScannerProvider(executionContext, configuration.AgentURL, logger)
	}

	var observers []execshell.CommandEventObserver
	if builder.CommandEventsObserver != nil {
		observers = append(observers, builder.CommandEventsObserver)
	}
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
	}

	gitExecutor, executorError := dependencies.ResolveGitExecutor(builder.GitExecutor, logger, observers...)
	if executorError != nil {
		return nil, executorError
	}
	localScanner, scannerError := NewLocalScanner(logger, fileSystem, NewGitClientFactory(gitExecutor))
	if scannerError != nil {
		return nil, scannerError
	}
	return localScanner, nil
}

func (builder *CommandBuilder) resolveRecordStore(executionContext context.Context) (RecordStore, error) {
	if builder.RecordStoreProvider == nil {
		return nil, ErrRecordStoreNotConfigured
	}
	return builder.RecordStoreProvider(executionContext)
}

func (builder *CommandBuilder) resolveNotifier(executionContext context.Context, logger *zap.Logger) (Notifier, error) {
	if builder.NotifierProvider == nil {
		return nil, nil
	}
	return builder.NotifierProvider(executionContext, logger)
}
