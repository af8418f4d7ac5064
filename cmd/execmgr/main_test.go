package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func newTestApp(out, errOut *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:      "execmgr",
		Commands:  []*cli.Command{ValidateCommand(), RunCommand()},
		Writer:    out,
		ErrWriter: errOut,
		ExitErrHandler: func(*cli.Context, error) {
			// keep os.Exit out of tests
		},
	}
}

// TestValidate_ValidFile verifies every context of a valid file is listed
func TestValidate_ValidFile(t *testing.T) {
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)

	if err := app.Run([]string{"execmgr", "validate", "-c", "testdata/small.yaml"}); err != nil {
		t.Fatalf("validate error = %v (%s)", err, errOut.String())
	}
	for _, want := range []string{"✓ cell (priority_worker)", "✓ up (worker_pool)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

// TestValidate_BrokenFile verifies each configuration error is printed
// Given: A pool with no workers and a lock-free queue of non power-of-two capacity
// When: The file is validated
// Then: The command fails and both problems are reported
func TestValidate_BrokenFile(t *testing.T) {
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)

	err := app.Run([]string{"execmgr", "validate", "-c", "testdata/broken.yaml"})

	if err == nil {
		t.Fatal("validate error = nil, want failure")
	}
	if n := strings.Count(errOut.String(), "✗"); n < 2 {
		t.Errorf("reported %d errors, want at least 2:\n%s", n, errOut.String())
	}
}

// TestRun_SubmitsLoadUntilDuration verifies the run command drives load and stops cleanly
func TestRun_SubmitsLoadUntilDuration(t *testing.T) {
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)

	err := app.RunContext(context.Background(), []string{
		"execmgr", "run", "-c", "testdata/small.yaml", "--duration", "200ms", "--rate", "200",
	})

	if err != nil {
		t.Fatalf("run error = %v (%s)", err, errOut.String())
	}
	if !strings.Contains(out.String(), "✓ cell") || !strings.Contains(out.String(), "accepted=") {
		t.Errorf("run output:\n%s", out.String())
	}
	if strings.Contains(out.String(), "accepted=0 ") {
		t.Errorf("no task was accepted:\n%s", out.String())
	}
}

func TestRun_RejectsBadRate(t *testing.T) {
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)

	if err := app.Run([]string{"execmgr", "run", "-c", "testdata/small.yaml", "--rate", "0"}); err == nil {
		t.Error("run with rate 0 error = nil")
	}
}
