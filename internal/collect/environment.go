package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/temirov/gitcollect/internal/filesystem"
)

// EnvironmentFormat selects how WriteEnvironment renders variables.
type EnvironmentFormat string

// Supported environment formats.
const (
	EnvironmentFormatDotenv EnvironmentFormat = "dotenv"
	EnvironmentFormatJSON   EnvironmentFormat = "json"
	EnvironmentFormatYAML   EnvironmentFormat = "yaml"
)

// Published environment variable names.
const (
	EnvironmentCommitName = "GIT_COMMIT"
	EnvironmentBranchName = "GIT_BRANCH"
	EnvironmentURLName    = "GIT_URL"
)

const (
	qualifiedEnvironmentNameTemplateConstant = "%s_%s"
	dotenvLineTemplateConstant               = "%s=%s\n"
	unsupportedFormatTemplateConstant        = "%w: %s"
	jsonIndentConstant                       = "  "
	safeNameReplacementConstant              = "_"
	environmentFilePermissionsConstant       = 0o644
)

var unsafeNameCharacters = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SafeName replaces every character outside [A-Za-z0-9_] with an underscore.
func SafeName(scmName string) string {
	return unsafeNameCharacters.ReplaceAllString(scmName, safeNameReplacementConstant)
}

// BuildEnvironment returns the revision variables for snapshot, both plain and qualified by the SCM name.
func BuildEnvironment(snapshot RepositorySnapshot) map[string]string {
	values := map[string]string{
		EnvironmentCommitName: snapshot.CommitID(),
		EnvironmentBranchName: snapshot.Branch(),
		EnvironmentURLName:    snapshot.RemoteURL,
	}
	safeName := SafeName(snapshot.SCMName)
	environment := make(map[string]string, len(values)*2)
	for name, value := range values {
		environment[name] = value
		environment[fmt.Sprintf(qualifiedEnvironmentNameTemplateConstant, name, safeName)] = value
	}
	return environment
}

// ParseEnvironmentFormat converts a textual format. Empty values select dotenv.
func ParseEnvironmentFormat(value string) (EnvironmentFormat, error) {
	switch candidate := EnvironmentFormat(strings.ToLower(strings.TrimSpace(value))); candidate {
	case "":
		return EnvironmentFormatDotenv, nil
	case EnvironmentFormatDotenv, EnvironmentFormatJSON, EnvironmentFormatYAML:
		return candidate, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedEnvironmentFormat, value)
	}
}

// WriteEnvironment renders environment to writer in the requested format.
func WriteEnvironment(writer io.Writer, environment map[string]string, format EnvironmentFormat) error {
	switch format {
	case EnvironmentFormatDotenv, "":
		_, writeError := io.WriteString(writer, renderDotenv(environment))
		return writeError
	case EnvironmentFormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(environment)
	case EnvironmentFormatYAML:
		encoder := yaml.NewEncoder(writer)
		if encodeError := encoder.Encode(environment); encodeError != nil {
			return encodeError
		}
		return encoder.Close()
	default:
		return fmt.Errorf(unsupportedFormatTemplateConstant, ErrUnsupportedEnvironmentFormat, format)
	}
}

func renderDotenv(environment map[string]string) string {
	names := make([]string, 0, len(environment))
	for name := range environment {
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	for _, name := range names {
		builder.WriteString(fmt.Sprintf(dotenvLineTemplateConstant, name, environment[name]))
	}
	return builder.String()
}

// WriterPublisher publishes environment variables by rendering them to a writer.
type WriterPublisher struct {
	Writer io.Writer
	Format EnvironmentFormat
}

// Publish renders the environment.
func (publisher WriterPublisher) Publish(_ context.Context, environment map[string]string) error {
	return WriteEnvironment(publisher.Writer, environment, publisher.Format)
}

// FilePublisher appends dotenv lines to a file such as the CI environment file.
type FilePublisher struct {
	FileSystem filesystem.FileSystem
	Path       string
}

// Publish appends the environment to the file.
func (publisher FilePublisher) Publish(_ context.Context, environment map[string]string) error {
	fileSystem := publisher.FileSystem
	if fileSystem == nil {
		fileSystem = filesystem.OSFileSystem{}
	}
	return fileSystem.AppendFile(publisher.Path, []byte(renderDotenv(environment)), environmentFilePermissionsConstant)
}

// PublisherChain publishes to every publisher in order and stops at the first failure.
type PublisherChain []EnvironmentPublisher

// Publish forwards the environment to each publisher.
func (chain PublisherChain) Publish(executionContext context.Context, environment map[string]string) error {
	for _, publisher := range chain {
		if publisher == nil {
			continue
		}
		if publishError := publisher.Publish(executionContext, environment); publishError != nil {
			return publishError
		}
	}
	return nil
}
