package cli

import (
	"bytes"
	"testing"
)

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	app := &appState{lookupEnv: envLookup(map[string]string{"WORK_DIR": t.TempDir()})}
	return runAppCommand(t, app, args)
}

func runAppCommand(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}
