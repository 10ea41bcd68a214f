package collect

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultWorkspaceRootConstant       = "."
	currentDirectoryConstant           = "."
	defaultRunIDConstant               = "local"
	defaultRunRootDirectoryConstant    = ".gitcollect/runs"
	absolutePathWarningMessageConstant = "path is absolute; paths are expected relative to the workspace"
	notificationFailedMessageConstant  = "changelog notification failed; registration continues"
	recordRegisteredMessageConstant    = "repository registered"
	recordMergedMessageConstant        = "repository already registered in this run; build appended"
	updateRecordsErrorTemplateConstant = "unable to update records for run %s: %w"
	publishErrorTemplateConstant       = "unable to publish environment: %w"
	logFieldPathConstant               = "path"
	logFieldWorkspaceConstant          = "workspace"
	logFieldRunIDConstant              = "run_id"
	logFieldRunNumberConstant          = "run_number"
	logFieldRecordIndexConstant        = "record_index"
	logFieldBuildCountConstant         = "build_count"
)

// ServiceDependencies enumerates the collaborators of Service. Notifier and Publisher are optional.
type ServiceDependencies struct {
	Logger      *zap.Logger
	Scanner     Scanner
	Notifier    Notifier
	RecordStore RecordStore
	Publisher   EnvironmentPublisher
}

// Service runs a collection end to end: scan, notify, register and publish.
type Service struct {
	logger      *zap.Logger
	scanner     Scanner
	notifier    Notifier
	recordStore RecordStore
	publisher   EnvironmentPublisher
}

// NewService constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	if dependencies.RecordStore == nil {
		return nil, ErrRecordStoreNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:      logger,
		scanner:     dependencies.Scanner,
		notifier:    dependencies.Notifier,
		recordStore: dependencies.RecordStore,
		publisher:   dependencies.Publisher,
	}, nil
}

// Collect registers the repository described by options in the run's records. Scan failures are returned
// unchanged; notification failures are logged. The environment is published only for newly added records.
func (service *Service) Collect(executionContext context.Context, options Options) (Outcome, error) {
	workspaceRoot := strings.TrimSpace(options.WorkspaceRoot)
	if len(workspaceRoot) == 0 {
		workspaceRoot = defaultWorkspaceRootConstant
	}
	runID := strings.TrimSpace(options.RunID)
	if len(runID) == 0 {
		runID = defaultRunIDConstant
	}

	request := ScanRequest{
		WorkspaceRoot:    workspaceRoot,
		Path:             service.requestPath(workspaceRoot, options.Path),
		MarkedReference:  options.MarkedReference,
		RemoteName:       options.RemoteName,
		Changelog:        options.Changelog,
		RunRootDirectory: runRootDirectory(options.RunRootDirectory, runID),
		Backend:          options.Backend,
	}

	scanResult, scanError := service.scanner.Scan(executionContext, request)
	if scanError != nil {
		return Outcome{}, scanError
	}
	snapshot := scanResult.Snapshot

	if len(scanResult.ChangelogPath) > 0 && service.notifier != nil {
		notification := ChangelogNotification{RunID: runID, RunNumber: options.RunNumber, Snapshot: snapshot, Path: scanResult.ChangelogPath}
		if notifyError := service.notifier.NotifyChangelog(executionContext, notification); notifyError != nil {
			service.logger.Warn(
				notificationFailedMessageConstant,
				zap.Error(OperationError{Kind: ErrorKindNotification, Subject: scanResult.ChangelogPath, Cause: notifyError}),
			)
		}
	}

	var added bool
	updatedRecords, updateError := service.recordStore.Update(executionContext, runID, func(existing []BuildRecord) []BuildRecord {
		registered, newlyAdded := Register(existing, snapshot, options.RunNumber, options.Result)
		added = newlyAdded
		return registered
	})
	if updateError != nil {
		return Outcome{}, fmt.Errorf(updateRecordsErrorTemplateConstant, runID, updateError)
	}

	outcome := Outcome{
		Snapshot:      snapshot,
		ChangelogPath: scanResult.ChangelogPath,
		Records:       updatedRecords,
		Added:         added,
	}

	if !added {
		service.logger.Info(
			recordMergedMessageConstant,
			zap.String(logFieldSCMNameConstant, snapshot.SCMName),
			zap.String(logFieldRunIDConstant, runID),
			zap.Int(logFieldRunNumberConstant, options.RunNumber),
		)
		return outcome, nil
	}

	registeredRecord := updatedRecords[len(updatedRecords)-1]
	service.logger.Info(
		recordRegisteredMessageConstant,
		zap.String(logFieldSCMNameConstant, snapshot.SCMName),
		zap.String(logFieldCommitIDConstant, snapshot.CommitID()),
		zap.String(logFieldRunIDConstant, runID),
		zap.Int(logFieldRecordIndexConstant, registeredRecord.Index),
		zap.Int(logFieldBuildCountConstant, len(registeredRecord.Builds)),
	)

	outcome.Environment = BuildEnvironment(snapshot)
	if service.publisher != nil {
		if publishError := service.publisher.Publish(executionContext, outcome.Environment); publishError != nil {
			return outcome, fmt.Errorf(publishErrorTemplateConstant, publishError)
		}
	}
	return outcome, nil
}

// requestPath keeps relative paths relative so that the scanner anchors them at its own workspace root.
func (service *Service) requestPath(workspaceRoot string, path string) string {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return currentDirectoryConstant
	}
	if filepath.IsAbs(trimmedPath) {
		service.logger.Warn(absolutePathWarningMessageConstant, zap.String(logFieldPathConstant, trimmedPath), zap.String(logFieldWorkspaceConstant, workspaceRoot))
	}
	return filepath.Clean(trimmedPath)
}

func runRootDirectory(runRoot string, runID string) string {
	trimmedRunRoot := strings.TrimSpace(runRoot)
	if len(trimmedRunRoot) == 0 {
		trimmedRunRoot = defaultRunRootDirectoryConstant
	}
	return filepath.Join(trimmedRunRoot, SafeName(runID))
}

// anchorPath resolves a relative path against workspaceRoot.
func anchorPath(workspaceRoot string, path string) string {
	if len(path) == 0 {
		path = currentDirectoryConstant
	}
	if filepath.IsAbs(path) || len(workspaceRoot) == 0 {
		return filepath.Clean(path)
	}
	return filepath.Join(workspaceRoot, path)
}
