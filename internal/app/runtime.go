package app

import (
	"os"
	"strconv"
)

// TestModeEnv names the variable that keeps the binaries from connecting to
// Postgres, Redis or Gotenberg when they are started by smoke tests.
const TestModeEnv = "ODYSSEY_POS_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value ("1", "true", ...).
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
