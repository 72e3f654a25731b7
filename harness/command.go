// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package harness

import (
	"os/exec"
	"strings"
	"testing"
)

// CommandExists reports whether the first word of command is an executable,
// found using exec.LookPath.
func CommandExists(command string) bool {
	args := strings.Fields(command)
	if len(args) == 0 {
		return false
	}
	_, err := exec.LookPath(args[0])
	return err == nil
}

// RequireCommand fails the test immediately if command is not available, see
// CommandExists.
func RequireCommand(t testing.TB, command string) {
	t.Helper()
	if !CommandExists(command) {
		name := command
		if args := strings.Fields(command); len(args) != 0 {
			name = args[0]
		}
		t.Fatalf("%s command not found. Can not run the test without it", name)
	}
}
