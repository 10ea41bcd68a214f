// Package collect registers a repository that was checked out outside the pipeline: it resolves the marked and
// built revisions, assembles an immutable snapshot, optionally writes a changelog between the two revisions and
// merges the snapshot into the run's build records before publishing revision environment variables.
package collect
