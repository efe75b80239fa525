package main

import (
	"bytes"
	"strings"
	"testing"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("execute --help: %v\nOutput:\n%s", err, output)
	}

	for _, cmd := range []string{"onboard", "run", "say", "status", "version"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("help output missing %q command:\n%s", cmd, output)
		}
	}
}

func TestRootWithoutSubcommandErrors(t *testing.T) {
	_, err := runRootCommandForTest()
	if err == nil {
		t.Fatal("expected error when no subcommand given")
	}
}

func TestSayRequiresArgument(t *testing.T) {
	_, err := runRootCommandForTest("say")
	if err == nil {
		t.Fatal("expected error for say without a command")
	}
}
