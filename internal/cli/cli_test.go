package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// execute runs a fresh command tree and returns the exit code and output.
func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return executeRoot(t, NewRootCommand(), args...)
}

func executeRoot(t *testing.T, root *cobra.Command, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	code := run(root, args)
	return code, stdout.String(), stderr.String()
}

// isolateEnvironment keeps the developer's configuration and credentials out
// of the test.
func isolateEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"BRANCHWARDEN_ORGANIZATION",
		"BRANCHWARDEN_DEFINITION",
		"BRANCHWARDEN_TOKEN",
		"BRANCHWARDEN_PROJECT",
		"AZURE_DEVOPS_EXT_PAT",
		"SYSTEM_ACCESSTOKEN",
	} {
		t.Setenv(key, "")
	}
}
