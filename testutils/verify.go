// Package testutils holds helpers shared by the package tests.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the package tests then fails if any goroutine is left running.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m,
		// net/http keeps idle keep-alive connections parked in these.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
	)
}
