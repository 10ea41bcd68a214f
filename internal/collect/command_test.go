package collect_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/gitcollect/internal/collect"
)

func initializeRepository(testInstance *testing.T, repositoryPath string) string {
	testInstance.Helper()
	repository, initError := git.PlainInit(repositoryPath, false)
	require.NoError(testInstance, initError)
	_, remoteError := repository.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:org/widgets.git"}})
	require.NoError(testInstance, remoteError)

	worktree, worktreeError := repository.Worktree()
	require.NoError(testInstance, worktreeError)
	require.NoError(testInstance, os.WriteFile(filepath.Join(repositoryPath, "README.md"), []byte("widgets\n"), 0o644))
	_, addError := worktree.Add("README.md")
	require.NoError(testInstance, addError)

	signature := &object.Signature{Name: "Build Bot", Email: "bot@example.com", When: time.Unix(1700000000, 0).UTC()}
	commitHash, commitError := worktree.Commit("initial", &git.CommitOptions{Author: signature, Committer: signature})
	require.NoError(testInstance, commitError)
	return commitHash.String()
}

func TestCollectCommandRegistersRepository(testInstance *testing.T) {
	workspaceRoot := testInstance.TempDir()
	repositoryPath := filepath.Join(workspaceRoot, "widgets")
	require.NoError(testInstance, os.MkdirAll(repositoryPath, 0o755))
	headCommit := initializeRepository(testInstance, repositoryPath)
	environmentFile := filepath.Join(workspaceRoot, "ci.env")

	recordStore := newMemoryRecordStore()
	builder := collect.CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: func() collect.CommandConfiguration {
			configuration := collect.DefaultCommandConfiguration()
			configuration.Backend = string(collect.BackendGoGit)
			return configuration
		},
		RecordStoreProvider: func(context.Context) (collect.RecordStore, error) { return recordStore, nil },
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &strings.Builder{}
	command.SetOut(outputBuffer)
	command.SetErr(outputBuffer)
	command.SetContext(context.Background())
	command.SetArgs([]string{"widgets", "--workspace", workspaceRoot, "--run-id", "pipeline-1", "--env-file", environmentFile})

	require.NoError(testInstance, command.Execute())

	expectedOutput := strings.Join([]string{
		"GIT_BRANCH=HEAD",
		"GIT_BRANCH_widgets=HEAD",
		"GIT_COMMIT=" + headCommit,
		"GIT_COMMIT_widgets=" + headCommit,
		"GIT_URL=git@github.com:org/widgets.git",
		"GIT_URL_widgets=git@github.com:org/widgets.git",
	}, "\n") + "\n"
	require.Equal(testInstance, expectedOutput, outputBuffer.String())

	environmentContent, readError := os.ReadFile(environmentFile)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, expectedOutput, string(environmentContent))

	records := recordStore.records["pipeline-1"]
	require.Len(testInstance, records, 1)
	require.Equal(testInstance, "widgets", records[0].SCMName)
	require.Equal(testInstance, headCommit, records[0].Builds[0].MarkedRevision.CommitID)
}

func TestCollectCommandRejectsInvalidInvocations(testInstance *testing.T) {
	testCases := []struct {
		name          string
		arguments     []string
		expectedError error
	}{
		{
			name:          "too_many_arguments",
			arguments:     []string{"one", "two"},
			expectedError: nil,
		},
		{
			name:          "unsupported_backend",
			arguments:     []string{"--backend", "svn"},
			expectedError: collect.ErrUnsupportedBackend,
		},
		{
			name:          "unsupported_env_format",
			arguments:     []string{"--env-format", "xml"},
			expectedError: collect.ErrUnsupportedEnvironmentFormat,
		},
		{
			name:          "agent_without_remote_scanner",
			arguments:     []string{"--agent", "ws://localhost:7878/agent"},
			expectedError: collect.ErrRemoteScannerNotConfigured,
		},
		{
			name:          "record_store_missing",
			arguments:     []string{"--workspace", testInstance.TempDir()},
			expectedError: collect.ErrRecordStoreNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			builder := collect.CommandBuilder{}
			command, buildError := builder.Build()
			require.NoError(subTest, buildError)

			command.SetContext(context.Background())
			command.SetArgs(testCase.arguments)
			command.SetOut(&strings.Builder{})
			command.SetErr(&strings.Builder{})

			executionError := command.Execute()
			require.Error(subTest, executionError)
			if testCase.expectedError != nil {
				require.ErrorIs(subTest, executionError, testCase.expectedError)
			}
		})
	}
}
