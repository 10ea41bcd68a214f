package collect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gitcollect/internal/collect"
	"github.com/temirov/gitcollect/internal/execshell"
	"github.com/temirov/gitcollect/internal/gitrepo"
)

type noopGitExecutor struct{}

func (noopGitExecutor) ExecuteGit(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return execshell.ExecutionResult{}, nil
}

func TestParseBackend(testInstance *testing.T) {
	backend, parseError := collect.ParseBackend("")
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, collect.BackendCLI, backend)

	backend, parseError = collect.ParseBackend(" GoGit ")
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, collect.BackendGoGit, backend)

	_, parseError = collect.ParseBackend("hg")
	require.ErrorIs(testInstance, parseError, collect.ErrUnsupportedBackend)
}

func TestGitClientFactorySelectsBackend(testInstance *testing.T) {
	factory := collect.NewGitClientFactory(noopGitExecutor{})

	cliClient, cliError := factory(collect.BackendCLI, "/workspace/repo")
	require.NoError(testInstance, cliError)
	require.IsType(testInstance, &gitrepo.CLIClient{}, cliClient)

	goGitClient, goGitError := factory(collect.BackendGoGit, "/workspace/repo")
	require.NoError(testInstance, goGitError)
	require.IsType(testInstance, &gitrepo.GoGitClient{}, goGitClient)

	_, unsupportedError := factory("bzr", "/workspace/repo")
	require.ErrorIs(testInstance, unsupportedError, collect.ErrUnsupportedBackend)

	_, pathError := factory(collect.BackendCLI, " ")
	require.ErrorIs(testInstance, pathError, gitrepo.ErrRepositoryPathRequired)
}
