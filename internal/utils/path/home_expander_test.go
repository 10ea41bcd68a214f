package pathutils_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	pathutils "github.com/temirov/gitcollect/internal/utils/path"
)

const testHomeDirectoryConstant = "/home/builder"

func TestHomeExpanderExpand(testInstance *testing.T) {
	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) { return testHomeDirectoryConstant, nil })

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare_tilde", input: "~", expected: testHomeDirectoryConstant},
		{name: "tilde_prefix", input: "~/keys/signing.asc", expected: filepath.Join(testHomeDirectoryConstant, "keys", "signing.asc")},
		{name: "relative_path", input: ".gitcollect/records.db", expected: ".gitcollect/records.db"},
		{name: "absolute_path", input: "/var/lib/gitcollect", expected: "/var/lib/gitcollect"},
		{name: "other_user", input: "~other/keys", expected: "~other/keys"},
		{name: "empty", input: "", expected: ""},
	}

	for testCaseIndex := range testCases {
		testCase := testCases[testCaseIndex]
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expected, expander.Expand(testCase.input))
		})
	}
}

func TestHomeExpanderExpandAll(testInstance *testing.T) {
	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) { return testHomeDirectoryConstant, nil })
	workspace := "~/workspace"
	environmentFile := "build.env"

	expander.ExpandAll(&workspace, nil, &environmentFile)

	require.Equal(testInstance, filepath.Join(testHomeDirectoryConstant, "workspace"), workspace)
	require.Equal(testInstance, "build.env", environmentFile)
}

func TestHomeExpanderKeepsPathWhenHomeUnknown(testInstance *testing.T) {
	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) { return "", errors.New("no home") })
	require.Equal(testInstance, "~/workspace", expander.Expand("~/workspace"))
}
