package collect

import (
	"context"
	"strings"

	"github.com/temirov/gitcollect/internal/gitrepo"
)

const defaultRemoteNameConstant = "origin"

// RepositoryInfoAssembler produces RepositorySnapshot values.
type RepositoryInfoAssembler struct {
	resolver RevisionResolver
}

// NewRepositoryInfoAssembler constructs an assembler resolving revisions with resolver.
func NewRepositoryInfoAssembler(resolver RevisionResolver) RepositoryInfoAssembler {
	return RepositoryInfoAssembler{resolver: resolver}
}

// Assemble resolves the remote, the built revision (HEAD) and the marked revision and derives the SCM name.
// The built revision is labelled with the marked reference, or HEAD when none is given. The marked revision is
// labelled only when the marked reference is not a raw commit id. After a remote-qualified fallback the label
// still holds the reference as given.
func (assembler RepositoryInfoAssembler) Assemble(executionContext context.Context, client RepositoryClient, remoteName string, markedReference string) (RepositorySnapshot, error) {
	resolvedRemoteName := strings.TrimSpace(remoteName)
	if len(resolvedRemoteName) == 0 {
		resolvedRemoteName = defaultRemoteNameConstant
	}

	remoteURL, remoteError := client.RemoteURL(executionContext, resolvedRemoteName)
	if remoteError != nil {
		if cancellationError := cancellationCause(executionContext, remoteError); cancellationError != nil {
			return RepositorySnapshot{}, cancellationError
		}
		return RepositorySnapshot{}, OperationError{Kind: ErrorKindMissingRemote, Subject: resolvedRemoteName, Cause: remoteError}
	}
	if len(remoteURL) == 0 {
		return RepositorySnapshot{}, OperationError{Kind: ErrorKindMissingRemote, Subject: resolvedRemoteName}
	}

	hasMarkedReference := len(strings.TrimSpace(markedReference)) > 0
	referenceHead := headReferenceConstant
	if hasMarkedReference {
		referenceHead = markedReference
	}

	builtCommitID, builtError := assembler.resolver.ResolveBuilt(executionContext, client)
	if builtError != nil {
		return RepositorySnapshot{}, builtError
	}

	markedCommitID, markedError := assembler.resolver.Resolve(executionContext, client, referenceHead, resolvedRemoteName)
	if markedError != nil {
		return RepositorySnapshot{}, markedError
	}

	markedRevision := RevisionPointer{CommitID: markedCommitID}
	if hasMarkedReference && !gitrepo.IsCommitID(markedReference) {
		markedRevision.Label = markedReference
	}

	scmName, nameError := gitrepo.HumanishName(remoteURL)
	if nameError != nil {
		return RepositorySnapshot{}, OperationError{Kind: ErrorKindURLParse, Subject: remoteURL, Cause: nameError}
	}

	return RepositorySnapshot{
		SCMName:        scmName,
		RemoteURL:      remoteURL,
		BuiltRevision:  RevisionPointer{CommitID: builtCommitID, Label: referenceHead},
		MarkedRevision: markedRevision,
	}, nil
}
