package mux

import (
	"testing"

	"go.uber.org/goleak"
)

// Every stream owns a dispatch goroutine; tests must tear streams down so
// none of them leak.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
