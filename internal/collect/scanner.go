package collect

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/filesystem"
)

const (
	defaultScanRunRootDirectoryConstant = "gitcollect"
	pathResolvedMessageConstant         = "repository path resolved"
	repositoryValidatedMessageConstant  = "repository validated"
	revisionsResolvedMessageConstant    = "revisions resolved"
	logFieldRepositoryPathConstant      = "repository_path"
	logFieldBackendConstant             = "backend"
	logFieldSCMNameConstant             = "scm_name"
	logFieldMarkedRevisionConstant      = "marked_revision"
	logFieldBuiltRevisionConstant       = "built_revision"
)

// LocalScanner scans repositories on the local filesystem.
type LocalScanner struct {
	logger        *zap.Logger
	fileSystem    filesystem.FileSystem
	clientFactory ClientFactory
	assembler     RepositoryInfoAssembler
	generator     ChangelogGenerator
}

// NewLocalScanner constructs a LocalScanner.
func NewLocalScanner(logger *zap.Logger, fileSystem filesystem.FileSystem, clientFactory ClientFactory) (*LocalScanner, error) {
	if clientFactory == nil {
		return nil, ErrClientFactoryNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fileSystem == nil {
		fileSystem = filesystem.OSFileSystem{}
	}
	return &LocalScanner{
		logger:        logger,
		fileSystem:    fileSystem,
		clientFactory: clientFactory,
		assembler:     NewRepositoryInfoAssembler(NewRevisionResolver(logger)),
		generator:     NewChangelogGenerator(logger, fileSystem),
	}, nil
}

// Scan validates the repository at request.Path, assembles its snapshot and writes the changelog when requested.
// Relative paths are anchored at request.WorkspaceRoot.
func (scanner *LocalScanner) Scan(executionContext context.Context, request ScanRequest) (ScanResult, error) {
	repositoryPath := anchorPath(request.WorkspaceRoot, request.Path)
	directoryInfo, statError := scanner.fileSystem.Stat(repositoryPath)
	if statError != nil {
		return ScanResult{}, OperationError{Kind: ErrorKindPathNotFound, Subject: repositoryPath, Cause: statError}
	}
	if !directoryInfo.IsDir() {
		return ScanResult{}, OperationError{Kind: ErrorKindPathNotFound, Subject: repositoryPath}
	}
	scanner.logger.Debug(pathResolvedMessageConstant, zap.String(logFieldRepositoryPathConstant, repositoryPath))

	client, clientError := scanner.clientFactory(request.Backend, repositoryPath)
	if clientError != nil {
		return ScanResult{}, clientError
	}

	if probeError := client.ProbeRepository(executionContext); probeError != nil {
		if cancellationError := cancellationCause(executionContext, probeError); cancellationError != nil {
			return ScanResult{}, cancellationError
		}
		return ScanResult{}, OperationError{Kind: ErrorKindNotARepository, Subject: repositoryPath, Cause: probeError}
	}
	scanner.logger.Debug(
		repositoryValidatedMessageConstant,
		zap.String(logFieldRepositoryPathConstant, repositoryPath),
		zap.String(logFieldBackendConstant, string(request.Backend)),
	)

	snapshot, assembleError := scanner.assembler.Assemble(executionContext, client, request.RemoteName, request.MarkedReference)
	if assembleError != nil {
		return ScanResult{}, assembleError
	}
	scanner.logger.Debug(
		revisionsResolvedMessageConstant,
		zap.String(logFieldSCMNameConstant, snapshot.SCMName),
		zap.String(logFieldMarkedRevisionConstant, snapshot.MarkedRevision.CommitID),
		zap.String(logFieldBuiltRevisionConstant, snapshot.BuiltRevision.CommitID),
	)

	result := ScanResult{Snapshot: snapshot}
	if request.Changelog {
		runRootDirectory := filepath.Join(os.TempDir(), defaultScanRunRootDirectoryConstant)
		if len(request.RunRootDirectory) > 0 {
			runRootDirectory = anchorPath(request.WorkspaceRoot, request.RunRootDirectory)
		}
		result.ChangelogPath = scanner.generator.Generate(executionContext, runRootDirectory, client, snapshot)
	}
	return result, nil
}
