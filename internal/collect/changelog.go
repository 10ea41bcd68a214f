package collect

import (
	"context"
	"io"
	"io/fs"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/filesystem"
)

const (
	changelogFilePatternConstant          = "changelog*.log"
	runRootPermissionsConstant            = fs.FileMode(0o700)
	changelogFilePermissionsConstant      = fs.FileMode(0o600)
	windowsOperatingSystemConstant        = "windows"
	changelogSkippedMessageConstant       = "marked and built revisions are identical; changelog skipped"
	changelogWrittenMessageConstant       = "changelog written"
	changelogFailedMessageConstant        = "changelog generation failed; continuing without changelog"
	changelogCleanupFailedMessageConstant = "unable to remove partial changelog"
	logFieldChangelogPathConstant         = "changelog_path"
	logFieldChangelogSizeConstant         = "changelog_size"
	logFieldMarkedCommitConstant          = "marked_commit"
	logFieldBuiltCommitConstant           = "built_commit"
	logFieldRunRootConstant               = "run_root"
)

// ChangelogGenerator writes the commits between the marked and built revisions to a file in the run root.
// Every failure is logged and swallowed.
type ChangelogGenerator struct {
	logger     *zap.Logger
	fileSystem filesystem.FileSystem
}

// NewChangelogGenerator constructs a ChangelogGenerator.
func NewChangelogGenerator(logger *zap.Logger, fileSystem filesystem.FileSystem) ChangelogGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fileSystem == nil {
		fileSystem = filesystem.OSFileSystem{}
	}
	return ChangelogGenerator{logger: logger, fileSystem: fileSystem}
}

// Generate returns the path of the written changelog, or an empty string when the revisions are equal or
// generation failed.
func (generator ChangelogGenerator) Generate(executionContext context.Context, runRootDirectory string, client RepositoryClient, snapshot RepositorySnapshot) string {
	markedCommitID := snapshot.MarkedRevision.CommitID
	builtCommitID := snapshot.BuiltRevision.CommitID
	if markedCommitID == builtCommitID {
		generator.logger.Debug(changelogSkippedMessageConstant, zap.String(logFieldBuiltCommitConstant, builtCommitID))
		return ""
	}

	return generator.persist(
		executionContext,
		runRootDirectory,
		func(changelogFile io.Writer) error {
			return client.StreamChangelog(executionContext, markedCommitID, builtCommitID, changelogFile)
		},
		zap.String(logFieldMarkedCommitConstant, markedCommitID),
		zap.String(logFieldBuiltCommitConstant, builtCommitID),
	)
}

// Copy stores changelog content produced on another machine in the run root. It returns the new path, or an
// empty string when the copy failed.
func (generator ChangelogGenerator) Copy(executionContext context.Context, runRootDirectory string, content []byte) string {
	return generator.persist(executionContext, runRootDirectory, func(changelogFile io.Writer) error {
		_, writeError := changelogFile.Write(content)
		return writeError
	})
}

func (generator ChangelogGenerator) persist(executionContext context.Context, runRootDirectory string, fill func(io.Writer) error, fields ...zap.Field) string {
	changelogPath, generationError := generator.write(executionContext, runRootDirectory, fill)
	if generationError != nil {
		failureFields := append([]zap.Field{
			zap.Error(OperationError{Kind: ErrorKindChangelogGeneration, Subject: runRootDirectory, Cause: generationError}),
			zap.String(logFieldRunRootConstant, runRootDirectory),
		}, fields...)
		generator.logger.Warn(changelogFailedMessageConstant, failureFields...)
		return ""
	}

	sizeField := zap.Skip()
	if fileInfo, statError := generator.fileSystem.Stat(changelogPath); statError == nil {
		sizeField = zap.String(logFieldChangelogSizeConstant, humanize.Bytes(uint64(fileInfo.Size())))
	}
	generator.logger.Info(changelogWrittenMessageConstant, zap.String(logFieldChangelogPathConstant, changelogPath), sizeField)
	return changelogPath
}

func (generator ChangelogGenerator) write(executionContext context.Context, runRootDirectory string, fill func(io.Writer) error) (string, error) {
	if directoryError := generator.fileSystem.MkdirAll(runRootDirectory, runRootPermissionsConstant); directoryError != nil {
		return "", directoryError
	}

	changelogFile, createError := generator.fileSystem.CreateTemp(runRootDirectory, changelogFilePatternConstant)
	if createError != nil {
		return "", createError
	}
	changelogPath := changelogFile.Name()

	writeError := restrictPermissions(changelogFile)
	if writeError == nil {
		writeError = fill(changelogFile)
	}
	closeError := changelogFile.Close()
	if writeError == nil {
		writeError = closeError
	}
	if writeError == nil {
		writeError = executionContext.Err()
	}
	if writeError != nil {
		if removeError := generator.fileSystem.Remove(changelogPath); removeError != nil && !os.IsNotExist(removeError) {
			generator.logger.Warn(changelogCleanupFailedMessageConstant, zap.String(logFieldChangelogPathConstant, changelogPath), zap.Error(removeError))
		}
		return "", writeError
	}
	return changelogPath, nil
}

func restrictPermissions(changelogFile *os.File) error {
	if runtime.GOOS == windowsOperatingSystemConstant {
		return nil
	}
	return changelogFile.Chmod(changelogFilePermissionsConstant)
}
