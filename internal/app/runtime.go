package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "PROJECTLEDGER_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should return before touching Postgres or
// Redis. The environment is read once and cached.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(&on)
	return on
}
