package collect

import (
	"context"
	"io"
)

// RepositoryClient is the capability set the collection needs from a version control client.
type RepositoryClient interface {
	ResolveReference(executionContext context.Context, reference string) (string, error)
	RemoteURL(executionContext context.Context, remoteName string) (string, error)
	ProbeRepository(executionContext context.Context) error
	StreamChangelog(executionContext context.Context, fromCommit string, toCommit string, destination io.Writer) error
}

// ClientFactory constructs a RepositoryClient for a repository path.
type ClientFactory func(backend Backend, repositoryPath string) (RepositoryClient, error)

// Scanner runs the worker-side part of a collection against a filesystem it can reach.
type Scanner interface {
	Scan(executionContext context.Context, request ScanRequest) (ScanResult, error)
}

// ChangelogNotification describes a changelog artifact handed to a Notifier.
type ChangelogNotification struct {
	RunID     string
	RunNumber int
	Snapshot  RepositorySnapshot
	Path      string
}

// Notifier receives changelog artifacts produced during a collection.
type Notifier interface {
	NotifyChangelog(executionContext context.Context, notification ChangelogNotification) error
}

// RecordStore persists the build records of each run. Update applies mutate to the run's records and stores the
// result atomically, returning what was stored.
type RecordStore interface {
	Update(executionContext context.Context, runID string, mutate func(existing []BuildRecord) []BuildRecord) ([]BuildRecord, error)
}

// EnvironmentPublisher exposes revision environment variables to the rest of the pipeline.
type EnvironmentPublisher interface {
	Publish(executionContext context.Context, environment map[string]string) error
}
