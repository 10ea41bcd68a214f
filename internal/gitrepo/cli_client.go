package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/temirov/gitcollect/internal/execshell"
)

const (
	gitRevParseSubcommandConstant            = "rev-parse"
	gitVerifyFlagConstant                    = "--verify"
	gitQuietFlagConstant                     = "--quiet"
	gitCommitPeelSuffixConstant              = "^{commit}"
	gitConfigSubcommandConstant              = "config"
	gitGetFlagConstant                       = "--get"
	gitRemoteURLKeyTemplateConstant          = "remote.%s.url"
	gitRevListSubcommandConstant             = "rev-list"
	gitAllFlagConstant                       = "--all"
	gitMaxCountOneFlagConstant               = "--max-count=1"
	gitLogSubcommandConstant                 = "log"
	gitRawFlagConstant                       = "--raw"
	gitNoAbbrevFlagConstant                  = "--no-abbrev"
	gitDetectRenamesFlagConstant             = "-M"
	gitNoColorFlagConstant                   = "--no-color"
	gitChangelogFormatFlagConstant           = "--format=commit %H%ntree %T%nparent %P%nauthor %aN <%aE> %ai%ncommitter %cN <%cE> %ci%n%n%w(0,4,4)%B"
	gitExclusionPrefixConstant               = "^"
	gitConfigMissingKeyExitCodeConstant      = 1
	gitTerminalPromptEnvironmentNameConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledValueConstant   = "0"
	executorNotConfiguredMessageConstant     = "git executor not configured"
	repositoryPathRequiredMessageConstant    = "repository path must be provided"
	operationErrorTemplateConstant           = "%s operation failed: %s"
	unexpectedRevisionOutputTemplateConstant = "unexpected rev-parse output %q"
	resolveReferenceOperationNameConstant    = OperationName("ResolveReference")
	remoteURLOperationNameConstant           = OperationName("RemoteURL")
	probeRepositoryOperationNameConstant     = OperationName("ProbeRepository")
	streamChangelogOperationNameConstant     = OperationName("StreamChangelog")
	openRepositoryOperationNameConstant      = OperationName("OpenRepository")
	changelogWriterRequiredMessageConstant   = "changelog writer must be provided"
	optionLikeReferenceMessageConstant       = "reference must not start with '-'"
	optionPrefixConstant                     = "-"
	changelogParentLinePrefixConstant        = "parent "
	lineTerminatorConstant                   = '\n'
)

var (
	// ErrExecutorNotConfigured indicates the client was constructed without a git executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	// ErrRepositoryPathRequired indicates the client was constructed without a repository path.
	ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)
	// ErrChangelogWriterRequired indicates StreamChangelog was called without a destination.
	ErrChangelogWriterRequired = errors.New(changelogWriterRequiredMessageConstant)
	// ErrOptionLikeReference indicates a reference that git would parse as a command line option.
	ErrOptionLikeReference = errors.New(optionLikeReferenceMessageConstant)
)

// OperationName describes a repository operation exposed by the clients.
type OperationName string

// OperationError wraps failures of repository operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// GitExecutor is the subset of execshell.ShellExecutor used by CLIClient.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// CLIClient answers repository questions by running the git executable inside one repository.
type CLIClient struct {
	executor       GitExecutor
	repositoryPath string
}

// NewCLIClient constructs a CLIClient bound to repositoryPath.
func NewCLIClient(executor GitExecutor, repositoryPath string) (*CLIClient, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, ErrRepositoryPathRequired
	}
	return &CLIClient{executor: executor, repositoryPath: trimmedPath}, nil
}

// ResolveReference resolves a reference to the full id of the commit it names.
func (client *CLIClient) ResolveReference(executionContext context.Context, reference string) (string, error) {
	if strings.HasPrefix(reference, optionPrefixConstant) {
		return "", OperationError{Operation: resolveReferenceOperationNameConstant, Cause: ErrOptionLikeReference}
	}
	executionResult, executionError := client.execute(executionContext, []string{
		gitRevParseSubcommandConstant,
		gitVerifyFlagConstant,
		gitQuietFlagConstant,
		reference + gitCommitPeelSuffixConstant,
	}, nil)
	if executionError != nil {
		return "", OperationError{Operation: resolveReferenceOperationNameConstant, Cause: executionError}
	}

	commitID := strings.ToLower(strings.TrimSpace(executionResult.StandardOutput))
	if !IsCommitID(commitID) {
		return "", OperationError{Operation: resolveReferenceOperationNameConstant, Cause: fmt.Errorf(unexpectedRevisionOutputTemplateConstant, executionResult.StandardOutput)}
	}
	return commitID, nil
}

// RemoteURL returns the URL configured for remoteName, or an empty string when none is configured.
func (client *CLIClient) RemoteURL(executionContext context.Context, remoteName string) (string, error) {
	executionResult, executionError := client.execute(executionContext, []string{
		gitConfigSubcommandConstant,
		gitGetFlagConstant,
		fmt.Sprintf(gitRemoteURLKeyTemplateConstant, remoteName),
	}, nil)
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) && failedError.Result.ExitCode == gitConfigMissingKeyExitCodeConstant {
			return "", nil
		}
		return "", OperationError{Operation: remoteURLOperationNameConstant, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// ProbeRepository confirms git can enumerate the commits of the repository.
func (client *CLIClient) ProbeRepository(executionContext context.Context) error {
	_, executionError := client.execute(executionContext, []string{gitRevListSubcommandConstant, gitAllFlagConstant, gitMaxCountOneFlagConstant}, nil)
	if executionError != nil {
		return OperationError{Operation: probeRepositoryOperationNameConstant, Cause: executionError}
	}
	return nil
}

// StreamChangelog writes the commits reachable from toCommit but not from fromCommit in raw changelog format.
// Each parent gets its own "parent" line and root commits get none.
func (client *CLIClient) StreamChangelog(executionContext context.Context, fromCommit string, toCommit string, destination io.Writer) error {
	if destination == nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: ErrChangelogWriterRequired}
	}
	changelogWriter := &parentLineWriter{destination: destination}
	_, executionError := client.execute(executionContext, []string{
		gitLogSubcommandConstant,
		gitRawFlagConstant,
		gitNoAbbrevFlagConstant,
		gitDetectRenamesFlagConstant,
		gitNoColorFlagConstant,
		gitChangelogFormatFlagConstant,
		toCommit,
		gitExclusionPrefixConstant + fromCommit,
	}, changelogWriter)
	if executionError != nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: executionError}
	}
	if flushError := changelogWriter.Flush(); flushError != nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: flushError}
	}
	return nil
}

// parentLineWriter splits the space separated "parent %P" header git prints into one line per parent.
type parentLineWriter struct {
	destination io.Writer
	pending     []byte
}

func (writer *parentLineWriter) Write(data []byte) (int, error) {
	writer.pending = append(writer.pending, data...)
	for {
		terminatorIndex := bytes.IndexByte(writer.pending, lineTerminatorConstant)
		if terminatorIndex < 0 {
			return len(data), nil
		}
		if writeError := writer.writeLine(writer.pending[:terminatorIndex+1]); writeError != nil {
			return 0, writeError
		}
		writer.pending = append(writer.pending[:0], writer.pending[terminatorIndex+1:]...)
	}
}

// Flush writes a trailing line that had no terminator.
func (writer *parentLineWriter) Flush() error {
	if len(writer.pending) == 0 {
		return nil
	}
	writeError := writer.writeLine(writer.pending)
	writer.pending = nil
	return writeError
}

func (writer *parentLineWriter) writeLine(line []byte) error {
	if !bytes.HasPrefix(line, []byte(changelogParentLinePrefixConstant)) {
		_, writeError := writer.destination.Write(line)
		return writeError
	}
	for _, parentHash := range strings.Fields(string(line[len(changelogParentLinePrefixConstant):])) {
		if _, writeError := io.WriteString(writer.destination, changelogParentLinePrefixConstant+parentHash+newlineConstant); writeError != nil {
			return writeError
		}
	}
	return nil
}

func (client *CLIClient) execute(executionContext context.Context, arguments []string, standardOutput io.Writer) (execshell.ExecutionResult, error) {
	return client.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     client.repositoryPath,
		EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptDisabledValueConstant},
		StandardOutput:       standardOutput,
	})
}
