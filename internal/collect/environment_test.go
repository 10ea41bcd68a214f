package collect_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/temirov/gitcollect/internal/collect"
)

const testSanitizedCommitConstant = "2222222222222222222222222222222222222222"

func sanitizationSnapshot() collect.RepositorySnapshot {
	return collect.RepositorySnapshot{
		SCMName:        "my/SCM-name",
		RemoteURL:      "ssh://git@example.com:29418/repo.git",
		BuiltRevision:  collect.RevisionPointer{CommitID: testSanitizedCommitConstant, Label: "feature/x"},
		MarkedRevision: collect.RevisionPointer{CommitID: testSanitizedCommitConstant, Label: "feature/x"},
	}
}

func TestBuildEnvironmentSanitizesSCMName(testInstance *testing.T) {
	environment := collect.BuildEnvironment(sanitizationSnapshot())

	require.Equal(testInstance, map[string]string{
		"GIT_COMMIT":             testSanitizedCommitConstant,
		"GIT_BRANCH":             "feature/x",
		"GIT_URL":                "ssh://git@example.com:29418/repo.git",
		"GIT_COMMIT_my_SCM_name": testSanitizedCommitConstant,
		"GIT_BRANCH_my_SCM_name": "feature/x",
		"GIT_URL_my_SCM_name":    "ssh://git@example.com:29418/repo.git",
	}, environment)
}

func TestSafeName(testInstance *testing.T) {
	require.Equal(testInstance, "my_SCM_name", collect.SafeName("my/SCM-name"))
	require.Equal(testInstance, "repo_v2_0", collect.SafeName("repo v2.0"))
	require.Equal(testInstance, "already_safe_123", collect.SafeName("already_safe_123"))
	require.Equal(testInstance, "caf_", collect.SafeName("café"))
}

func TestWriteEnvironment(testInstance *testing.T) {
	environment := map[string]string{"GIT_URL": "u", "GIT_COMMIT": "c", "GIT_BRANCH": "b"}

	testCases := []struct {
		name   string
		format collect.EnvironmentFormat
		verify func(subTest *testing.T, output []byte)
	}{
		{
			name:   "dotenv",
			format: collect.EnvironmentFormatDotenv,
			verify: func(subTest *testing.T, output []byte) {
				require.Equal(subTest, "GIT_BRANCH=b\nGIT_COMMIT=c\nGIT_URL=u\n", string(output))
			},
		},
		{
			name:   "json",
			format: collect.EnvironmentFormatJSON,
			verify: func(subTest *testing.T, output []byte) {
				decoded := map[string]string{}
				require.NoError(subTest, json.Unmarshal(output, &decoded))
				require.Equal(subTest, environment, decoded)
			},
		},
		{
			name:   "yaml",
			format: collect.EnvironmentFormatYAML,
			verify: func(subTest *testing.T, output []byte) {
				decoded := map[string]string{}
				require.NoError(subTest, yaml.Unmarshal(output, &decoded))
				require.Equal(subTest, environment, decoded)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			var output bytes.Buffer
			require.NoError(subTest, collect.WriteEnvironment(&output, environment, testCase.format))
			testCase.verify(subTest, output.Bytes())
		})
	}

	require.ErrorIs(testInstance, collect.WriteEnvironment(&bytes.Buffer{}, environment, "toml"), collect.ErrUnsupportedEnvironmentFormat)
}

func TestParseEnvironmentFormat(testInstance *testing.T) {
	format, parseError := collect.ParseEnvironmentFormat("")
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, collect.EnvironmentFormatDotenv, format)

	format, parseError = collect.ParseEnvironmentFormat(" YAML ")
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, collect.EnvironmentFormatYAML, format)

	_, parseError = collect.ParseEnvironmentFormat("xml")
	require.ErrorIs(testInstance, parseError, collect.ErrUnsupportedEnvironmentFormat)
}

func TestFilePublisherAppends(testInstance *testing.T) {
	environmentFile := filepath.Join(testInstance.TempDir(), "ci.env")
	require.NoError(testInstance, os.WriteFile(environmentFile, []byte("EXISTING=1\n"), 0o644))

	publisher := collect.PublisherChain{collect.FilePublisher{Path: environmentFile}, nil}
	require.NoError(testInstance, publisher.Publish(context.Background(), map[string]string{"GIT_COMMIT": "c"}))

	content, readError := os.ReadFile(environmentFile)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "EXISTING=1\nGIT_COMMIT=c\n", string(content))
}
