package collect

import (
	"fmt"
	"strings"

	"github.com/temirov/gitcollect/internal/gitrepo"
)

const unsupportedBackendTemplateConstant = "%w: %s"

// ParseBackend converts a textual backend name. Empty values select BackendCLI.
func ParseBackend(value string) (Backend, error) {
	switch candidate := Backend(strings.ToLower(strings.TrimSpace(value))); candidate {
	case "":
		return BackendCLI, nil
	case BackendCLI, BackendGoGit:
		return candidate, nil
	default:
		return "", fmt.Errorf(unsupportedBackendTemplateConstant, ErrUnsupportedBackend, value)
	}
}

// NewGitClientFactory returns a ClientFactory producing git executable clients or in-process go-git clients.
func NewGitClientFactory(executor gitrepo.GitExecutor) ClientFactory {
	return func(backend Backend, repositoryPath string) (RepositoryClient, error) {
		resolvedBackend, backendError := ParseBackend(string(backend))
		if backendError != nil {
			return nil, backendError
		}
		if resolvedBackend == BackendGoGit {
			goGitClient, creationError := gitrepo.NewGoGitClient(repositoryPath)
			if creationError != nil {
				return nil, creationError
			}
			return goGitClient, nil
		}
		cliClient, creationError := gitrepo.NewCLIClient(executor, repositoryPath)
		if creationError != nil {
			return nil, creationError
		}
		return cliClient, nil
	}
}
