package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger prefixed with the test name so interleaved
// output from parallel tests stays attributable.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags)
}
