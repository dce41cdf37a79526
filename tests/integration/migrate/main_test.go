package migrate

import (
	"os"
	"testing"
)

// TestMain is the entry point for migration integration tests against a
// real PostgreSQL server.
func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
