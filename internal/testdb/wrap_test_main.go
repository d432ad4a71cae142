package testdb

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
)

const (
	// key_NEO4JTEST_DOCKER is the environment variable that enables tests which start containers.
	key_NEO4JTEST_DOCKER = "NEO4JTEST_DOCKER"
	// key_NEO4JTEST_NOCLEANUP is the environment variable that disables container cleanup.
	key_NEO4JTEST_NOCLEANUP = "NEO4JTEST_NOCLEANUP"
	// key_NEO4JTEST_BLOCK is the environment variable that blocks the test until a signal is received.
	key_NEO4JTEST_BLOCK = "NEO4JTEST_BLOCK"
)

// WrapTestMain runs the tests and exits with their result. If NEO4JTEST_BLOCK is true it waits for
// CTRL+C first, so containers left behind with NEO4JTEST_NOCLEANUP can be inspected.
func WrapTestMain(m *testing.M) {
	code := m.Run()
	if envIsTrue(key_NEO4JTEST_BLOCK) {
		blockUntilSignal(code)
	}
	os.Exit(code)
}

// SkipIfNoDocker skips t unless NEO4JTEST_DOCKER is true. Tests are also skipped in -short mode.
func SkipIfNoDocker(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping docker test in short mode")
	}
	if !envIsTrue(key_NEO4JTEST_DOCKER) {
		t.Skipf("skipping docker test: set %s=true to run", key_NEO4JTEST_DOCKER)
	}
}

// NoCleanup reports whether containers should be left running after the tests.
func NoCleanup() bool {
	return envIsTrue(key_NEO4JTEST_NOCLEANUP)
}

func blockUntilSignal(code int) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	fmt.Fprintf(os.Stderr, "+++ debug mode: must exit (CTRL+C) manually. (code: %d)\n", code)
	<-sigs
}

func envIsTrue(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
