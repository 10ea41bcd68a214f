package collect

import (
	"strings"
)

// RevisionPointer names one commit and, optionally, the symbolic reference it was resolved from.
type RevisionPointer struct {
	CommitID string `json:"commit_id" yaml:"commit_id"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
}

// HasLabel reports whether the pointer carries a symbolic reference.
func (pointer RevisionPointer) HasLabel() bool {
	return len(pointer.Label) > 0
}

// RepositorySnapshot bundles the remote and revision facts captured in one resolution pass.
type RepositorySnapshot struct {
	SCMName        string          `json:"scm_name" yaml:"scm_name"`
	RemoteURL      string          `json:"remote_url" yaml:"remote_url"`
	BuiltRevision  RevisionPointer `json:"built_revision" yaml:"built_revision"`
	MarkedRevision RevisionPointer `json:"marked_revision" yaml:"marked_revision"`
}

// Branch returns the label of the built revision.
func (snapshot RepositorySnapshot) Branch() string {
	return snapshot.BuiltRevision.Label
}

// CommitID returns the commit id of the built revision.
func (snapshot RepositorySnapshot) CommitID() string {
	return snapshot.BuiltRevision.CommitID
}

// BuildResult describes the outcome of the run a build entry belongs to.
type BuildResult string

// Supported build results.
const (
	BuildResultSuccess  BuildResult = "SUCCESS"
	BuildResultUnstable BuildResult = "UNSTABLE"
	BuildResultFailure  BuildResult = "FAILURE"
	BuildResultNotBuilt BuildResult = "NOT_BUILT"
	BuildResultAborted  BuildResult = "ABORTED"
)

// ParseBuildResult converts a textual result into a BuildResult. Empty and unknown values map to
// BuildResultSuccess because a run without a result is still in progress.
func ParseBuildResult(value string) BuildResult {
	switch candidate := BuildResult(strings.ToUpper(strings.TrimSpace(value))); candidate {
	case BuildResultSuccess, BuildResultUnstable, BuildResultFailure, BuildResultNotBuilt, BuildResultAborted:
		return candidate
	default:
		return BuildResultSuccess
	}
}

// BuildEntry is one registration of a repository within a run.
type BuildEntry struct {
	MarkedRevision RevisionPointer `json:"marked_revision" yaml:"marked_revision"`
	BuiltRevision  RevisionPointer `json:"built_revision" yaml:"built_revision"`
	RunNumber      int             `json:"run_number" yaml:"run_number"`
	Result         BuildResult     `json:"result" yaml:"result"`
}

// BuildRecord groups the build entries registered for one logical repository. Index 0 means unassigned.
type BuildRecord struct {
	SCMName    string       `json:"scm_name" yaml:"scm_name"`
	RemoteURLs []string     `json:"remote_urls" yaml:"remote_urls"`
	Builds     []BuildEntry `json:"builds" yaml:"builds"`
	Index      int          `json:"index,omitempty" yaml:"index,omitempty"`
}

// Backend selects the repository client implementation.
type Backend string

// Supported repository client backends.
const (
	BackendCLI   Backend = "cli"
	BackendGoGit Backend = "gogit"
)

// ScanRequest describes one worker-side scan of a repository. Path and RunRootDirectory may be relative; the
// scanning side anchors them at its own workspace root.
type ScanRequest struct {
	// WorkspaceRoot is the coordinator's workspace. It stays on the coordinator.
	WorkspaceRoot    string  `json:"-"`
	Path             string  `json:"path"`
	MarkedReference  string  `json:"marked_reference,omitempty"`
	RemoteName       string  `json:"remote_name,omitempty"`
	Changelog        bool    `json:"changelog,omitempty"`
	RunRootDirectory string  `json:"run_root_directory,omitempty"`
	Backend          Backend `json:"backend,omitempty"`
}

// ScanResult carries the snapshot and the optional changelog artifact produced by a scan. ChangelogContent is only
// filled by an agent, whose ChangelogPath is not readable by the coordinator.
type ScanResult struct {
	Snapshot         RepositorySnapshot `json:"snapshot"`
	ChangelogPath    string             `json:"changelog_path,omitempty"`
	ChangelogContent []byte             `json:"changelog_content,omitempty"`
}

// Options configure a Service.Collect invocation.
type Options struct {
	WorkspaceRoot    string
	Path             string
	MarkedReference  string
	RemoteName       string
	Changelog        bool
	RunRootDirectory string
	Backend          Backend
	RunID            string
	RunNumber        int
	Result           BuildResult
}

// Outcome reports what Service.Collect registered. Environment is nil unless the record was newly added.
type Outcome struct {
	Snapshot      RepositorySnapshot
	ChangelogPath string
	Records       []BuildRecord
	Added         bool
	Environment   map[string]string
}
