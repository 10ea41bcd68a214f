package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcollect/internal/collect"
)

const (
	testRemoteURLConstant               = "https://github.com/org/widgets.git"
	testRecordsDSNEnvironmentConstant   = "GITCOLLECT_TOOLS_RECORDS_DSN"
	testCollectBackendEnvNameConstant   = "GITCOLLECT_TOOLS_COLLECT_BACKEND"
	testCollectRunIDEnvironmentConstant = "GITCOLLECT_TOOLS_COLLECT_RUN_ID"
	testRecordsRunIDEnvironmentConstant = "GITCOLLECT_TOOLS_RECORDS_RUN_ID"
	testRunIDConstant                   = "pipeline-42"
)

func executeApplication(t *testing.T, arguments ...string) (string, error) {
	t.Helper()
	application, applicationError := NewApplication()
	require.NoError(t, applicationError)

	var output bytes.Buffer
	application.rootCommand.SetOut(&output)
	application.rootCommand.SetErr(&bytes.Buffer{})
	application.rootCommand.SetArgs(arguments)
	executionError := application.Execute()
	return output.String(), executionError
}

func createWidgetsRepository(t *testing.T, workspaceRoot string) string {
	t.Helper()
	repositoryPath := filepath.Join(workspaceRoot, "widgets")
	repository, initError := git.PlainInit(repositoryPath, false)
	require.NoError(t, initError)
	_, remoteError := repository.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{testRemoteURLConstant}})
	require.NoError(t, remoteError)

	worktree, worktreeError := repository.Worktree()
	require.NoError(t, worktreeError)
	require.NoError(t, os.WriteFile(filepath.Join(repositoryPath, "README.md"), []byte("widgets\n"), 0o644))
	_, addError := worktree.Add("README.md")
	require.NoError(t, addError)
	signature := &object.Signature{Name: "Build Bot", Email: "bot@example.com", When: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
	commit, commitError := worktree.Commit("initial import", &git.CommitOptions{Author: signature, Committer: signature})
	require.NoError(t, commitError)
	return commit.String()
}

func TestApplicationRegistersCommands(t *testing.T) {
	application, applicationError := NewApplication()
	require.NoError(t, applicationError)

	var commandNames []string
	for _, command := range application.rootCommand.Commands() {
		commandNames = append(commandNames, command.Name())
	}
	require.Subset(t, commandNames, []string{"collect", "records", "agent"})
}

func TestApplicationCollectThenListRecords(t *testing.T) {
	workspaceRoot := t.TempDir()
	commitID := createWidgetsRepository(t, workspaceRoot)

	t.Setenv(testRecordsDSNEnvironmentConstant, filepath.Join(t.TempDir(), "records.db"))
	t.Setenv(testCollectBackendEnvNameConstant, "gogit")
	t.Setenv(testCollectRunIDEnvironmentConstant, testRunIDConstant)
	t.Setenv(testRecordsRunIDEnvironmentConstant, testRunIDConstant)

	collectOutput, collectError := executeApplication(t, "collect", "widgets", "--workspace", workspaceRoot, "--log-level", "error")
	require.NoError(t, collectError)
	require.Equal(t,
		"GIT_BRANCH=HEAD\n"+
			"GIT_BRANCH_widgets=HEAD\n"+
			"GIT_COMMIT="+commitID+"\n"+
			"GIT_COMMIT_widgets="+commitID+"\n"+
			"GIT_URL="+testRemoteURLConstant+"\n"+
			"GIT_URL_widgets="+testRemoteURLConstant+"\n",
		collectOutput,
	)

	recordsOutput, recordsError := executeApplication(t, "records", "--format", "json", "--log-level", "error")
	require.NoError(t, recordsError)

	var storedRecords []collect.BuildRecord
	require.NoError(t, json.Unmarshal([]byte(recordsOutput), &storedRecords))
	require.Len(t, storedRecords, 1)
	require.Equal(t, "widgets", storedRecords[0].SCMName)
	require.Equal(t, []string{testRemoteURLConstant}, storedRecords[0].RemoteURLs)
	require.Len(t, storedRecords[0].Builds, 1)
	require.Equal(t, commitID, storedRecords[0].Builds[0].BuiltRevision.CommitID)
}

func TestApplicationRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv(testRecordsDSNEnvironmentConstant, filepath.Join(t.TempDir(), "records.db"))

	_, executionError := executeApplication(t, "records", "--log-level", "verbose")
	require.ErrorContains(t, executionError, "unable to create logger")
}

func TestApplicationReadsConfigurationFile(t *testing.T) {
	configurationPath := filepath.Join(t.TempDir(), "config.yaml")
	databasePath := filepath.Join(t.TempDir(), "configured.db")
	configurationContent := "common:\n  log_level: error\ntools:\n  records:\n    dsn: " + databasePath + "\n    format: json\n"
	require.NoError(t, os.WriteFile(configurationPath, []byte(configurationContent), 0o600))

	output, executionError := executeApplication(t, "records", "--config", configurationPath, "--runs")
	require.NoError(t, executionError)
	require.JSONEq(t, "[]", output)
	require.FileExists(t, databasePath)
}

func TestApplicationCollectReportsMissingPath(t *testing.T) {
	t.Setenv(testRecordsDSNEnvironmentConstant, filepath.Join(t.TempDir(), "records.db"))

	_, executionError := executeApplication(t, "collect", "absent", "--workspace", t.TempDir(), "--log-level", "error")
	require.Equal(t, collect.ErrorKindPathNotFound, collect.KindOf(executionError))
	require.ErrorContains(t, executionError, "path not found")
}
