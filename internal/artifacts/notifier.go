package artifacts

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/collect"
)

const (
	changelogAvailableMessageConstant = "changelog available"
	changelogSignedMessageConstant    = "changelog signed"
	changelogArchivedMessageConstant  = "changelog archived"
	logFieldRunIDConstant             = "run_id"
	logFieldRunNumberConstant         = "run_number"
	logFieldSCMNameConstant           = "scm_name"
	logFieldPathConstant              = "path"
	logFieldSizeConstant              = "size"
	logFieldSignatureConstant         = "signature"
	logFieldObjectKeyConstant         = "object_key"
)

// FileSigner produces a detached signature for a file and returns its path.
type FileSigner interface {
	Sign(executionContext context.Context, filePath string) (string, error)
}

// FileUploader stores a file under an object key.
type FileUploader interface {
	Upload(executionContext context.Context, objectKey string, filePath string, contentType string) (int64, error)
}

// LoggingNotifier records every changelog artifact in the log.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a LoggingNotifier; a nil logger discards output.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

// NotifyChangelog logs the artifact location and size.
func (notifier *LoggingNotifier) NotifyChangelog(executionContext context.Context, notification collect.ChangelogNotification) error {
	fields := []zap.Field{
		zap.String(logFieldRunIDConstant, notification.RunID),
		zap.Int(logFieldRunNumberConstant, notification.RunNumber),
		zap.String(logFieldSCMNameConstant, notification.Snapshot.SCMName),
		zap.String(logFieldPathConstant, notification.Path),
	}
	if information, statError := os.Stat(notification.Path); statError == nil {
		fields = append(fields, zap.String(logFieldSizeConstant, humanize.Bytes(uint64(information.Size()))))
	}
	notifier.logger.Info(changelogAvailableMessageConstant, fields...)
	return nil
}

// ArchiveNotifier signs changelog artifacts and uploads them with their signatures. Either step is skipped when its
// collaborator is nil.
type ArchiveNotifier struct {
	Logger   *zap.Logger
	Signer   FileSigner
	Uploader FileUploader
	Prefix   string
}

// NotifyChangelog signs and archives the artifact.
func (notifier *ArchiveNotifier) NotifyChangelog(executionContext context.Context, notification collect.ChangelogNotification) error {
	logger := notifier.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	signaturePath := ""
	if notifier.Signer != nil {
		signedPath, signError := notifier.Signer.Sign(executionContext, notification.Path)
		if signError != nil {
			return signError
		}
		signaturePath = signedPath
		logger.Info(changelogSignedMessageConstant, zap.String(logFieldPathConstant, notification.Path), zap.String(logFieldSignatureConstant, signaturePath))
	}

	if notifier.Uploader == nil {
		return nil
	}

	objectKey := ObjectKey(notifier.Prefix, notification)
	size, uploadError := notifier.Uploader.Upload(executionContext, objectKey, notification.Path, changelogContentTypeConstant)
	if uploadError != nil {
		return uploadError
	}
	logger.Info(changelogArchivedMessageConstant, zap.String(logFieldObjectKeyConstant, objectKey), zap.String(logFieldSizeConstant, humanize.Bytes(uint64(size))))

	if len(signaturePath) == 0 {
		return nil
	}
	signatureKey := objectKey + signatureExtensionConstant
	if _, signatureUploadError := notifier.Uploader.Upload(executionContext, signatureKey, signaturePath, signatureContentTypeConstant); signatureUploadError != nil {
		return signatureUploadError
	}
	logger.Info(changelogArchivedMessageConstant, zap.String(logFieldObjectKeyConstant, signatureKey))
	return nil
}

// ObjectKey names the archived changelog: prefix/run/run-number/scm-name/file.
func ObjectKey(prefix string, notification collect.ChangelogNotification) string {
	return path.Join(
		prefix,
		collect.SafeName(notification.RunID),
		strconv.Itoa(notification.RunNumber),
		collect.SafeName(notification.Snapshot.SCMName),
		filepath.Base(notification.Path),
	)
}

// NotifierChain forwards a notification to every notifier and joins their failures.
type NotifierChain []collect.Notifier

// NotifyChangelog notifies each member in order.
func (chain NotifierChain) NotifyChangelog(executionContext context.Context, notification collect.ChangelogNotification) error {
	var failures []error
	for _, notifier := range chain {
		if notifier == nil {
			continue
		}
		if notifyError := notifier.NotifyChangelog(executionContext, notification); notifyError != nil {
			failures = append(failures, notifyError)
		}
	}
	return errors.Join(failures...)
}

// NewNotifier builds the notifier chain described by configuration: the logging notifier always, followed by
// signing and archival when configured.
func NewNotifier(executionContext context.Context, configuration Configuration, logger *zap.Logger) (collect.Notifier, error) {
	sanitized := configuration.sanitize()
	chain := NotifierChain{NewLoggingNotifier(logger)}
	if !sanitized.SigningEnabled() && !sanitized.ArchiveEnabled() {
		return chain, nil
	}

	archiveNotifier := &ArchiveNotifier{Logger: logger, Prefix: sanitized.Prefix}
	if sanitized.SigningEnabled() {
		signer, signerError := LoadSigner(sanitized.SigningKeyFile, sanitized.SigningKeyPassphrase)
		if signerError != nil {
			return nil, signerError
		}
		archiveNotifier.Signer = signer
	}
	if sanitized.ArchiveEnabled() {
		archiver, archiverError := NewArchiver(sanitized)
		if archiverError != nil {
			return nil, archiverError
		}
		if bucketError := archiver.EnsureBucket(executionContext); bucketError != nil {
			return nil, bucketError
		}
		archiveNotifier.Uploader = archiver
	}

	return append(chain, archiveNotifier), nil
}
