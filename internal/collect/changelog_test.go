package collect_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/gitcollect/internal/collect"
	"github.com/temirov/gitcollect/internal/filesystem"
)

func TestChangelogGeneratorSkipsEqualRevisions(testInstance *testing.T) {
	runRoot := filepath.Join(testInstance.TempDir(), "run")
	client := newFakeRepositoryClient()
	snapshot := testSnapshot()
	snapshot.MarkedRevision.CommitID = snapshot.BuiltRevision.CommitID

	generator := collect.NewChangelogGenerator(zap.NewNop(), filesystem.OSFileSystem{})
	changelogPath := generator.Generate(context.Background(), runRoot, client, snapshot)
	require.Empty(testInstance, changelogPath)
	require.Empty(testInstance, client.changelogRanges)

	_, statError := os.Stat(runRoot)
	require.True(testInstance, os.IsNotExist(statError))
}

func TestChangelogGeneratorWritesChangelog(testInstance *testing.T) {
	runRoot := filepath.Join(testInstance.TempDir(), "run")
	client := newFakeRepositoryClient()
	observerCore, observedLogs := observer.New(zapcore.InfoLevel)

	generator := collect.NewChangelogGenerator(zap.New(observerCore), nil)
	changelogPath := generator.Generate(context.Background(), runRoot, client, testSnapshot())
	require.NotEmpty(testInstance, changelogPath)
	require.Equal(testInstance, runRoot, filepath.Dir(changelogPath))

	matched, matchError := filepath.Match("changelog*.log", filepath.Base(changelogPath))
	require.NoError(testInstance, matchError)
	require.True(testInstance, matched)

	content, readError := os.ReadFile(changelogPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testChangelogContentConstant, string(content))
	require.Equal(testInstance, []changelogRange{{from: testMarkedCommitConstant, to: testHeadCommitConstant}}, client.changelogRanges)

	if runtime.GOOS != "windows" {
		fileInfo, statError := os.Stat(changelogPath)
		require.NoError(testInstance, statError)
		require.Equal(testInstance, os.FileMode(0o600), fileInfo.Mode().Perm())
	}

	entries := observedLogs.FilterMessage("changelog written").All()
	require.Len(testInstance, entries, 1)
	require.Equal(testInstance, "48 B", entries[0].ContextMap()["changelog_size"])
}

func TestChangelogGeneratorUsesUniqueNames(testInstance *testing.T) {
	runRoot := testInstance.TempDir()
	generator := collect.NewChangelogGenerator(zap.NewNop(), filesystem.OSFileSystem{})

	firstPath := generator.Generate(context.Background(), runRoot, newFakeRepositoryClient(), testSnapshot())
	secondPath := generator.Generate(context.Background(), runRoot, newFakeRepositoryClient(), testSnapshot())
	require.NotEmpty(testInstance, firstPath)
	require.NotEmpty(testInstance, secondPath)
	require.NotEqual(testInstance, firstPath, secondPath)
}

func TestChangelogGeneratorRemovesPartialFileOnFailure(testInstance *testing.T) {
	testCases := []struct {
		name      string
		configure func(client *fakeRepositoryClient) context.Context
	}{
		{
			name: "stream_failure",
			configure: func(client *fakeRepositoryClient) context.Context {
				client.changelogError = errors.New("broken pipe")
				return context.Background()
			},
		},
		{
			name: "cancellation",
			configure: func(client *fakeRepositoryClient) context.Context {
				executionContext, cancel := context.WithCancel(context.Background())
				cancel()
				return executionContext
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			runRoot := subTest.TempDir()
			client := newFakeRepositoryClient()
			executionContext := testCase.configure(client)
			observerCore, observedLogs := observer.New(zapcore.WarnLevel)

			generator := collect.NewChangelogGenerator(zap.New(observerCore), filesystem.OSFileSystem{})
			changelogPath := generator.Generate(executionContext, runRoot, client, testSnapshot())
			require.Empty(subTest, changelogPath)

			directoryEntries, readError := os.ReadDir(runRoot)
			require.NoError(subTest, readError)
			require.Empty(subTest, directoryEntries)

			warnings := observedLogs.All()
			require.Len(subTest, warnings, 1)
			require.Equal(subTest, zapcore.WarnLevel, warnings[0].Level)
			require.Contains(subTest, warnings[0].ContextMap()["error"], "changelog generation failed")
		})
	}
}

func TestChangelogGeneratorCopy(testInstance *testing.T) {
	runRoot := filepath.Join(testInstance.TempDir(), "coordinator", "runs", "7")
	generator := collect.NewChangelogGenerator(zap.NewNop(), nil)

	changelogPath := generator.Copy(context.Background(), runRoot, []byte(testChangelogContentConstant))
	require.Equal(testInstance, runRoot, filepath.Dir(changelogPath))
	content, readError := os.ReadFile(changelogPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testChangelogContentConstant, string(content))

	if runtime.GOOS != "windows" {
		fileInfo, statError := os.Stat(changelogPath)
		require.NoError(testInstance, statError)
		require.Equal(testInstance, os.FileMode(0o600), fileInfo.Mode().Perm())
	}

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	require.Empty(testInstance, generator.Copy(cancelledContext, runRoot, []byte(testChangelogContentConstant)))
	entries, readDirError := os.ReadDir(runRoot)
	require.NoError(testInstance, readDirError)
	require.Len(testInstance, entries, 1)
}
