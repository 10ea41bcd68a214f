package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gitcollect/internal/collect"
)

// Format selects how the records command renders output.
type Format string

// Supported output formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

const (
	commandUseConstant                = "records"
	commandShortDescriptionConstant   = "Print the build records of a pipeline run"
	commandLongDescriptionConstant    = "records prints the repositories registered by collect for a run, each with its remote URLs and the builds recorded against it."
	flagRunIDNameConstant             = "run-id"
	flagRunIDDescriptionConstant      = "Identifier of the pipeline run"
	flagFormatNameConstant            = "format"
	flagFormatDescriptionConstant     = "Output format (yaml or json)"
	flagRunsNameConstant              = "runs"
	flagRunsDescriptionConstant       = "List the run identifiers holding records instead of printing records"
	jsonIndentConstant                = "  "
	unsupportedFormatTemplateConstant = "%w: %s"
	storeCloseFailedMessageConstant   = "unable to close record store"
	recordsLoadedMessageConstant      = "records loaded"
	logFieldRunIDConstant             = "run_id"
	logFieldCountConstant             = "count"
)

// ErrUnsupportedFormat indicates an unknown records output format.
var ErrUnsupportedFormat = errors.New("unsupported records format")

// LoggerProvider supplies a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the records cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() Configuration
}

// Build constructs the records command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().String(flagRunIDNameConstant, defaultRunIDConstant, flagRunIDDescriptionConstant)
	command.Flags().String(flagFormatNameConstant, string(FormatYAML), flagFormatDescriptionConstant)
	command.Flags().Bool(flagRunsNameConstant, false, flagRunsDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration(command)
	format, formatError := ParseFormat(configuration.Format)
	if formatError != nil {
		return formatError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}
	logger := builder.resolveLogger()

	store, openError := Open(executionContext, configuration)
	if openError != nil {
		return openError
	}
	defer func() {
		if closeError := store.Close(); closeError != nil {
			logger.Warn(storeCloseFailedMessageConstant, zap.Error(closeError))
		}
	}()

	listRuns, _ := command.Flags().GetBool(flagRunsNameConstant)
	if listRuns {
		runIDs, runsError := store.Runs(executionContext)
		if runsError != nil {
			return runsError
		}
		if runIDs == nil {
			runIDs = []string{}
		}
		return render(command.OutOrStdout(), format, runIDs)
	}

	records, loadError := store.Load(executionContext, configuration.RunID)
	if loadError != nil {
		return loadError
	}
	logger.Debug(recordsLoadedMessageConstant, zap.String(logFieldRunIDConstant, configuration.RunID), zap.Int(logFieldCountConstant, len(records)))
	if records == nil {
		records = []collect.BuildRecord{}
	}
	return render(command.OutOrStdout(), format, records)
}

// ParseFormat converts a textual output format. Empty values select YAML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatYAML:
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedFormat, value)
	}
}

func render(writer io.Writer, format Format, value any) error {
	if format == FormatJSON {
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(value)
	}
	encoder := yaml.NewEncoder(writer)
	if encodeError := encoder.Encode(value); encodeError != nil {
		return encodeError
	}
	return encoder.Close()
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) Configuration {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	flags := command.Flags()
	if flags.Changed(flagRunIDNameConstant) {
		configuration.RunID, _ = flags.GetString(flagRunIDNameConstant)
	}
	if flags.Changed(flagFormatNameConstant) {
		configuration.Format, _ = flags.GetString(flagFormatNameConstant)
	}

	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	if logger := builder.LoggerProvider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}
