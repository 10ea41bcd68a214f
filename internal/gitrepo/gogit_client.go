package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

const (
	changelogCommitHeaderTemplateConstant = "commit %s\ntree %s\n"
	changelogParentTemplateConstant       = "parent %s\n"
	changelogPersonTemplateConstant       = "%s %s <%s> %s\n"
	changelogAuthorKeywordConstant        = "author"
	changelogCommitterKeywordConstant     = "committer"
	changelogMessageIndentConstant        = "    "
	changelogRawChangeTemplateConstant    = ":%06o %06o %s %s %s\t%s\n"
	changelogTimestampLayoutConstant      = "2006-01-02 15:04:05 -0700"
	changeStatusAddedConstant             = "A"
	changeStatusDeletedConstant           = "D"
	changeStatusModifiedConstant          = "M"
	newlineConstant                       = "\n"
)

// GoGitClient answers repository questions with the in-process go-git implementation.
// The repository is opened lazily so that opening failures surface through ProbeRepository.
type GoGitClient struct {
	repositoryPath string
	openOnce       sync.Once
	repository     *git.Repository
	openError      error
}

// NewGoGitClient constructs a GoGitClient bound to repositoryPath.
func NewGoGitClient(repositoryPath string) (*GoGitClient, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, ErrRepositoryPathRequired
	}
	return &GoGitClient{repositoryPath: trimmedPath}, nil
}

func (client *GoGitClient) open() (*git.Repository, error) {
	client.openOnce.Do(func() {
		repository, openError := git.PlainOpenWithOptions(client.repositoryPath, &git.PlainOpenOptions{DetectDotGit: true})
		if openError != nil {
			client.openError = OperationError{Operation: openRepositoryOperationNameConstant, Cause: openError}
			return
		}
		client.repository = repository
	})
	return client.repository, client.openError
}

// ResolveReference resolves a reference to the full id of the commit it names.
func (client *GoGitClient) ResolveReference(executionContext context.Context, reference string) (string, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return "", contextError
	}
	repository, openError := client.open()
	if openError != nil {
		return "", openError
	}

	hash, resolveError := repository.ResolveRevision(plumbing.Revision(reference))
	if resolveError != nil {
		return "", OperationError{Operation: resolveReferenceOperationNameConstant, Cause: resolveError}
	}
	if _, commitError := repository.CommitObject(*hash); commitError != nil {
		return "", OperationError{Operation: resolveReferenceOperationNameConstant, Cause: commitError}
	}
	return hash.String(), nil
}

// RemoteURL returns the first URL configured for remoteName, or an empty string when none is configured.
func (client *GoGitClient) RemoteURL(executionContext context.Context, remoteName string) (string, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return "", contextError
	}
	repository, openError := client.open()
	if openError != nil {
		return "", openError
	}

	remote, remoteError := repository.Remote(remoteName)
	if remoteError != nil {
		if errors.Is(remoteError, git.ErrRemoteNotFound) {
			return "", nil
		}
		return "", OperationError{Operation: remoteURLOperationNameConstant, Cause: remoteError}
	}
	remoteURLs := remote.Config().URLs
	if len(remoteURLs) == 0 {
		return "", nil
	}
	return strings.TrimSpace(remoteURLs[0]), nil
}

// ProbeRepository opens the repository and starts enumerating its commits.
func (client *GoGitClient) ProbeRepository(executionContext context.Context) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	repository, openError := client.open()
	if openError != nil {
		return openError
	}

	commitIterator, iteratorError := repository.CommitObjects()
	if iteratorError != nil {
		return OperationError{Operation: probeRepositoryOperationNameConstant, Cause: iteratorError}
	}
	defer commitIterator.Close()

	if _, nextError := commitIterator.Next(); nextError != nil && !errors.Is(nextError, io.EOF) {
		return OperationError{Operation: probeRepositoryOperationNameConstant, Cause: nextError}
	}
	return nil
}

// StreamChangelog writes the commits reachable from toCommit but not from fromCommit in raw changelog format.
func (client *GoGitClient) StreamChangelog(executionContext context.Context, fromCommit string, toCommit string, destination io.Writer) error {
	if destination == nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: ErrChangelogWriterRequired}
	}
	repository, openError := client.open()
	if openError != nil {
		return openError
	}

	excludedCommits := make(map[plumbing.Hash]struct{})
	markedIterator, markedError := repository.Log(&git.LogOptions{From: plumbing.NewHash(fromCommit)})
	if markedError != nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: markedError}
	}
	collectError := markedIterator.ForEach(func(commit *object.Commit) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		excludedCommits[commit.Hash] = struct{}{}
		return nil
	})
	if collectError != nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: collectError}
	}

	builtIterator, builtError := repository.Log(&git.LogOptions{From: plumbing.NewHash(toCommit)})
	if builtError != nil {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: builtError}
	}
	writeError := builtIterator.ForEach(func(commit *object.Commit) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		if _, excluded := excludedCommits[commit.Hash]; excluded {
			return nil
		}
		return writeChangelogEntry(executionContext, destination, commit)
	})
	if writeError != nil && !errors.Is(writeError, storer.ErrStop) {
		return OperationError{Operation: streamChangelogOperationNameConstant, Cause: writeError}
	}
	return nil
}

func writeChangelogEntry(executionContext context.Context, destination io.Writer, commit *object.Commit) error {
	var entry strings.Builder
	fmt.Fprintf(&entry, changelogCommitHeaderTemplateConstant, commit.Hash, commit.TreeHash)
	for _, parentHash := range commit.ParentHashes {
		fmt.Fprintf(&entry, changelogParentTemplateConstant, parentHash)
	}
	fmt.Fprintf(&entry, changelogPersonTemplateConstant, changelogAuthorKeywordConstant, commit.Author.Name, commit.Author.Email, commit.Author.When.Format(changelogTimestampLayoutConstant))
	fmt.Fprintf(&entry, changelogPersonTemplateConstant, changelogCommitterKeywordConstant, commit.Committer.Name, commit.Committer.Email, commit.Committer.When.Format(changelogTimestampLayoutConstant))
	entry.WriteString(newlineConstant)
	for _, messageLine := range strings.Split(strings.TrimRight(commit.Message, newlineConstant), newlineConstant) {
		entry.WriteString(changelogMessageIndentConstant + messageLine + newlineConstant)
	}
	entry.WriteString(newlineConstant)

	rawChanges, changesError := describeRawChanges(executionContext, commit)
	if changesError != nil {
		return changesError
	}
	entry.WriteString(rawChanges)
	if len(rawChanges) > 0 {
		entry.WriteString(newlineConstant)
	}

	_, writeError := io.WriteString(destination, entry.String())
	return writeError
}

func describeRawChanges(executionContext context.Context, commit *object.Commit) (string, error) {
	commitTree, treeError := commit.Tree()
	if treeError != nil {
		return "", treeError
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parentCommit, parentError := commit.Parent(0)
		if parentError != nil {
			return "", parentError
		}
		parentTree, treeError = parentCommit.Tree()
		if treeError != nil {
			return "", treeError
		}
	}

	changes, diffError := object.DiffTreeWithOptions(executionContext, parentTree, commitTree, object.DefaultDiffTreeOptions)
	if diffError != nil {
		return "", diffError
	}

	var rawChanges strings.Builder
	for _, change := range changes {
		action, actionError := change.Action()
		if actionError != nil {
			return "", actionError
		}
		status := changeStatusModifiedConstant
		changedPath := change.To.Name
		switch action {
		case merkletrie.Insert:
			status = changeStatusAddedConstant
		case merkletrie.Delete:
			status = changeStatusDeletedConstant
			changedPath = change.From.Name
		}
		fmt.Fprintf(&rawChanges, changelogRawChangeTemplateConstant,
			uint32(change.From.TreeEntry.Mode), uint32(change.To.TreeEntry.Mode),
			change.From.TreeEntry.Hash, change.To.TreeEntry.Hash,
			status, changedPath)
	}
	return rawChanges.String(), nil
}
