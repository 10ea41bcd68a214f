package collect_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/temirov/gitcollect/internal/collect"
)

const (
	testHeadCommitConstant       = "4444444444444444444444444444444444444444"
	testMarkedCommitConstant     = "3333333333333333333333333333333333333333"
	testRemoteURLConstant        = "ssh://git@github.com:org/repo.git"
	testOtherRemoteURLConstant   = "https://example.com/team/tools.git"
	testChangelogContentConstant = "commit 4444444444444444444444444444444444444444\n"
)

var errUnknownRevision = errors.New("unknown revision")

type changelogRange struct {
	from string
	to   string
}

type fakeRepositoryClient struct {
	mutex              sync.Mutex
	references         map[string]string
	remoteURLs         map[string]string
	remoteError        error
	probeError         error
	changelogContent   string
	changelogError     error
	beforeResolve      func(reference string)
	resolvedReferences []string
	changelogRanges    []changelogRange
}

func newFakeRepositoryClient() *fakeRepositoryClient {
	return &fakeRepositoryClient{
		references: map[string]string{
			"HEAD":   testHeadCommitConstant,
			"master": testMarkedCommitConstant,
		},
		remoteURLs:       map[string]string{"origin": testRemoteURLConstant},
		changelogContent: testChangelogContentConstant,
	}
}

func (client *fakeRepositoryClient) ResolveReference(executionContext context.Context, reference string) (string, error) {
	client.mutex.Lock()
	client.resolvedReferences = append(client.resolvedReferences, reference)
	hook := client.beforeResolve
	client.mutex.Unlock()

	if hook != nil {
		hook(reference)
	}
	if contextError := executionContext.Err(); contextError != nil {
		return "", contextError
	}
	commitID, known := client.references[reference]
	if !known {
		return "", errUnknownRevision
	}
	return commitID, nil
}

func (client *fakeRepositoryClient) RemoteURL(executionContext context.Context, remoteName string) (string, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return "", contextError
	}
	if client.remoteError != nil {
		return "", client.remoteError
	}
	return client.remoteURLs[remoteName], nil
}

func (client *fakeRepositoryClient) ProbeRepository(executionContext context.Context) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	return client.probeError
}

func (client *fakeRepositoryClient) StreamChangelog(executionContext context.Context, fromCommit string, toCommit string, destination io.Writer) error {
	client.mutex.Lock()
	client.changelogRanges = append(client.changelogRanges, changelogRange{from: fromCommit, to: toCommit})
	client.mutex.Unlock()

	if _, writeError := io.WriteString(destination, client.changelogContent); writeError != nil {
		return writeError
	}
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	return client.changelogError
}

func (client *fakeRepositoryClient) factory() collect.ClientFactory {
	return func(collect.Backend, string) (collect.RepositoryClient, error) {
		return client, nil
	}
}

type memoryRecordStore struct {
	records     map[string][]collect.BuildRecord
	updateError error
	saveCount   int
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: map[string][]collect.BuildRecord{}}
}

func (store *memoryRecordStore) Update(_ context.Context, runID string, mutate func([]collect.BuildRecord) []collect.BuildRecord) ([]collect.BuildRecord, error) {
	if store.updateError != nil {
		return nil, store.updateError
	}
	updated := mutate(store.records[runID])
	store.saveCount++
	store.records[runID] = updated
	return updated, nil
}

type recordingNotifier struct {
	notifications []collect.ChangelogNotification
	notifyError   error
}

func (notifier *recordingNotifier) NotifyChangelog(_ context.Context, notification collect.ChangelogNotification) error {
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.notifyError
}

type recordingPublisher struct {
	environments []map[string]string
}

func (publisher *recordingPublisher) Publish(_ context.Context, environment map[string]string) error {
	publisher.environments = append(publisher.environments, environment)
	return nil
}

type stubScanner struct {
	result   collect.ScanResult
	scanErr  error
	requests []collect.ScanRequest
}

func (scanner *stubScanner) Scan(_ context.Context, request collect.ScanRequest) (collect.ScanResult, error) {
	scanner.requests = append(scanner.requests, request)
	return scanner.result, scanner.scanErr
}

func testSnapshot() collect.RepositorySnapshot {
	return collect.RepositorySnapshot{
		SCMName:        "repo",
		RemoteURL:      testRemoteURLConstant,
		BuiltRevision:  collect.RevisionPointer{CommitID: testHeadCommitConstant, Label: "master"},
		MarkedRevision: collect.RevisionPointer{CommitID: testMarkedCommitConstant, Label: "master"},
	}
}
