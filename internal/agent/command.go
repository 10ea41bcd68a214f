package agent

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/collect"
	"github.com/temirov/gitcollect/internal/dependencies"
	"github.com/temirov/gitcollect/internal/execshell"
	"github.com/temirov/gitcollect/internal/filesystem"
	"github.com/temirov/gitcollect/internal/gitrepo"
	"github.com/temirov/gitcollect/internal/ui"
)

const (
	commandUseConstant               = "agent"
	commandShortDescriptionConstant  = "Serve collections for coordinators on other machines"
	commandLongDescriptionConstant   = "agent accepts websocket connections from gitcollect collect --agent and scans repositories inside its workspace, writing changelogs under the workspace."
	flagListenNameConstant           = "listen"
	flagListenDescriptionConstant    = "Address the agent listens on"
	flagWorkspaceNameConstant        = "workspace"
	flagWorkspaceDescriptionConstant = "Directory that request paths are resolved against and confined to"
)

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the agent cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        func() Configuration
	HumanReadableLoggingProvider func() bool
	GitExecutor                  gitrepo.GitExecutor
	FileSystem                   filesystem.FileSystem
}

// Build constructs the agent command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(flagListenNameConstant, defaultListenAddressConstant, flagListenDescriptionConstant)
	command.Flags().String(flagWorkspaceNameConstant, defaultWorkspaceConstant, flagWorkspaceDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration(command)
	logger := dependencies.ResolveLogger(builder.resolveLogger())

	server, serverError := builder.newServer(configuration, logger)
	if serverError != nil {
		return serverError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	signalContext, stop := signal.NotifyContext(executionContext, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(signalContext, configuration.Listen)
}

func (builder *CommandBuilder) newServer(configuration Configuration, logger *zap.Logger) (*Server, error) {
	var observers []execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
	}
	gitExecutor, executorError := dependencies.ResolveGitExecutor(builder.GitExecutor, logger, observers...)
	if executorError != nil {
		return nil, executorError
	}

	scanner, scannerError := collect.NewLocalScanner(logger, dependencies.ResolveFileSystem(builder.FileSystem), collect.NewGitClientFactory(gitExecutor))
	if scannerError != nil {
		return nil, scannerError
	}
	return NewServer(logger, scanner, configuration.Workspace)
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) Configuration {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	flags := command.Flags()
	if flags.Changed(flagListenNameConstant) {
		configuration.Listen, _ = flags.GetString(flagListenNameConstant)
	}
	if flags.Changed(flagWorkspaceNameConstant) {
		configuration.Workspace, _ = flags.GetString(flagWorkspaceNameConstant)
	}
	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	return builder.LoggerProvider()
}
