package collect

import (
	"errors"
	"fmt"
)

// ErrorKind classifies collection failures.
type ErrorKind string

// Error kinds. Changelog generation and notification failures are recovered and only logged.
const (
	ErrorKindPathNotFound        ErrorKind = "path_not_found"
	ErrorKindNotARepository      ErrorKind = "not_a_repository"
	ErrorKindRevisionResolution  ErrorKind = "revision_resolution"
	ErrorKindMissingRemote       ErrorKind = "missing_remote"
	ErrorKindURLParse            ErrorKind = "url_parse"
	ErrorKindChangelogGeneration ErrorKind = "changelog_generation"
	ErrorKindNotification        ErrorKind = "notification"
)

const (
	pathNotFoundMessageTemplateConstant        = "path not found: %s"
	notARepositoryMessageTemplateConstant      = "not a valid repository: %s"
	revisionResolutionMessageTemplateConstant  = "could not resolve revision '%s'"
	missingRemoteMessageTemplateConstant       = "remote '%s' has no configured url"
	urlParseMessageTemplateConstant            = "unable to derive a name from the remote URL '%s'"
	changelogGenerationMessageTemplateConstant = "changelog generation failed in %s"
	notificationMessageTemplateConstant        = "changelog notification failed for %s"
	unknownKindMessageTemplateConstant         = "%s"
	causeSuffixTemplateConstant                = "%s: %s"
)

var (
	// ErrScannerNotConfigured indicates the service has no scanner.
	ErrScannerNotConfigured = errors.New("scanner not configured")
	// ErrRecordStoreNotConfigured indicates the service has no record store.
	ErrRecordStoreNotConfigured = errors.New("record store not configured")
	// ErrClientFactoryNotConfigured indicates the local scanner cannot construct repository clients.
	ErrClientFactoryNotConfigured = errors.New("repository client factory not configured")
	// ErrRemoteScannerNotConfigured indicates an agent URL was given without a way to reach agents.
	ErrRemoteScannerNotConfigured = errors.New("remote scanner not configured")
	// ErrUnsupportedBackend indicates an unknown repository client backend.
	ErrUnsupportedBackend = errors.New("unsupported repository backend")
	// ErrUnsupportedEnvironmentFormat indicates an unknown environment output format.
	ErrUnsupportedEnvironmentFormat = errors.New("unsupported environment format")
)

var errorMessageTemplates = map[ErrorKind]string{
	ErrorKindPathNotFound:        pathNotFoundMessageTemplateConstant,
	ErrorKindNotARepository:      notARepositoryMessageTemplateConstant,
	ErrorKindRevisionResolution:  revisionResolutionMessageTemplateConstant,
	ErrorKindMissingRemote:       missingRemoteMessageTemplateConstant,
	ErrorKindURLParse:            urlParseMessageTemplateConstant,
	ErrorKindChangelogGeneration: changelogGenerationMessageTemplateConstant,
	ErrorKindNotification:        notificationMessageTemplateConstant,
}

// OperationError reports a failed collection stage. Subject names what the stage operated on.
type OperationError struct {
	Kind    ErrorKind
	Subject string
	Cause   error
}

// Error renders the stage prefix followed by the cause.
func (operationError OperationError) Error() string {
	template, known := errorMessageTemplates[operationError.Kind]
	if !known {
		template = unknownKindMessageTemplateConstant
	}
	message := fmt.Sprintf(template, operationError.Subject)
	if operationError.Cause == nil {
		return message
	}
	return fmt.Sprintf(causeSuffixTemplateConstant, message, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Fatal reports whether the failure aborts the collection.
func (operationError OperationError) Fatal() bool {
	return operationError.Kind != ErrorKindChangelogGeneration && operationError.Kind != ErrorKindNotification
}

// KindOf returns the kind of the first OperationError in the chain, or an empty kind.
func KindOf(err error) ErrorKind {
	var operationError OperationError
	if errors.As(err, &operationError) {
		return operationError.Kind
	}
	return ""
}
