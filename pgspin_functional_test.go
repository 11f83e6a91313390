//go:build integration
// +build integration

package main

import (
	"os"
	"os/exec"
	"testing"
	"time"

	expect "github.com/Netflix/go-expect"
)

// TestCLIHelpUnderPTY drives the compiled binary's root --help output
// through a pseudo-terminal, the way an interactive terminal session
// would see it, grounded on the teacher's PTY-driven TUI functional
// tests (generalized from auto-selecting a TUI menu item to reading
// cobra's help text, since pgspin has no full-screen interactive mode).
func TestCLIHelpUnderPTY(t *testing.T) {
	binary := buildPgspinBinary(t)
	defer os.Remove(binary)

	console, err := expect.NewConsole(
		expect.WithStdout(os.Stdout),
		expect.WithDefaultTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create console: %v", err)
	}
	defer console.Close()

	cmd := exec.Command(binary, "--help")
	cmd.Stdin = console.Tty()
	cmd.Stdout = console.Tty()
	cmd.Stderr = console.Tty()

	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start pgspin: %v", err)
	}

	if _, err := console.ExpectString("Embed and orchestrate PostgreSQL clusters"); err != nil {
		t.Errorf("help output did not contain expected banner: %v", err)
	}

	cmd.Wait()
}

func buildPgspinBinary(t *testing.T) string {
	binary := "/tmp/pgspin_test_" + time.Now().Format("20060102_150405")
	cmd := exec.Command("go", "build", "-o", binary, ".")

	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build pgspin: %v\n%s", err, output)
	}

	return binary
}
