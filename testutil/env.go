package testutil

import (
	"os"
	"testing"
)

// UnsetEnv removes keys from the environment for the duration of the test.
// t.Setenv records the previous values so cleanup restores them.
func UnsetEnv(t testing.TB, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unset %s: %v", k, err)
		}
	}
}
