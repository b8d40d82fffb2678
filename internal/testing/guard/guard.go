// Package guard switches binaries into test mode when imported by a test, so
// calling main() returns before dialing Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PROJECTLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("PROJECTLEDGER_TEST_MODE", "1")
		}
	})
}
