package app

import (
	"os"
	"sync"
)

const testModeEnv = "LAUNCHPAD_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether startup side effects should be skipped.
// The flag is read once; tests set it before the first call.
func InTestMode() bool {
	return inTestMode()
}
