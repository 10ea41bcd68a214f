package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	headReferenceConstant                    = "HEAD"
	remoteQualifiedReferenceTemplateConstant = "%s/%s"
	resolutionAttemptsErrorTemplateConstant  = "tried '%s' and '%s': %w"
	resolutionFallbackMessageConstant        = "reference did not resolve; retrying with remote-qualified reference"
	resolutionCompletedMessageConstant       = "resolved reference"
	logFieldReferenceConstant                = "reference"
	logFieldFallbackReferenceConstant        = "fallback_reference"
	logFieldCommitIDConstant                 = "commit_id"
	logFieldResolutionErrorConstant          = "resolution_error"
)

// RevisionResolver turns references into commit ids, retrying with the remote-qualified form.
type RevisionResolver struct {
	logger *zap.Logger
}

// NewRevisionResolver constructs a RevisionResolver.
func NewRevisionResolver(logger *zap.Logger) RevisionResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return RevisionResolver{logger: logger}
}

// Resolve resolves reference, or HEAD when it is blank. A failed attempt is retried once as
// "<remoteName>/<reference>"; cancellation is returned as is and never triggers the retry.
func (resolver RevisionResolver) Resolve(executionContext context.Context, client RepositoryClient, reference string, remoteName string) (string, error) {
	attemptedReference := reference
	if len(strings.TrimSpace(attemptedReference)) == 0 {
		attemptedReference = headReferenceConstant
	}

	commitID, resolveError := client.ResolveReference(executionContext, attemptedReference)
	if resolveError == nil {
		resolver.logResolved(attemptedReference, commitID)
		return commitID, nil
	}
	if cancellationError := cancellationCause(executionContext, resolveError); cancellationError != nil {
		return "", cancellationError
	}

	fallbackReference := fmt.Sprintf(remoteQualifiedReferenceTemplateConstant, remoteName, attemptedReference)
	resolver.logger.Debug(
		resolutionFallbackMessageConstant,
		zap.String(logFieldReferenceConstant, attemptedReference),
		zap.String(logFieldFallbackReferenceConstant, fallbackReference),
		zap.NamedError(logFieldResolutionErrorConstant, resolveError),
	)

	commitID, fallbackError := client.ResolveReference(executionContext, fallbackReference)
	if fallbackError == nil {
		resolver.logResolved(fallbackReference, commitID)
		return commitID, nil
	}
	if cancellationError := cancellationCause(executionContext, fallbackError); cancellationError != nil {
		return "", cancellationError
	}

	return "", OperationError{
		Kind:    ErrorKindRevisionResolution,
		Subject: attemptedReference,
		Cause:   fmt.Errorf(resolutionAttemptsErrorTemplateConstant, attemptedReference, fallbackReference, fallbackError),
	}
}

// ResolveBuilt resolves the revision of the current checkout.
func (resolver RevisionResolver) ResolveBuilt(executionContext context.Context, client RepositoryClient) (string, error) {
	commitID, resolveError := client.ResolveReference(executionContext, headReferenceConstant)
	if resolveError == nil {
		resolver.logResolved(headReferenceConstant, commitID)
		return commitID, nil
	}
	if cancellationError := cancellationCause(executionContext, resolveError); cancellationError != nil {
		return "", cancellationError
	}
	return "", OperationError{Kind: ErrorKindRevisionResolution, Subject: headReferenceConstant, Cause: resolveError}
}

func (resolver RevisionResolver) logResolved(reference string, commitID string) {
	resolver.logger.Debug(
		resolutionCompletedMessageConstant,
		zap.String(logFieldReferenceConstant, reference),
		zap.String(logFieldCommitIDConstant, commitID),
	)
}

// cancellationCause returns a non-nil error when the failure stems from cancellation.
func cancellationCause(executionContext context.Context, failure error) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		return failure
	}
	return nil
}
