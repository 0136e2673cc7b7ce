// Package exitcodes holds the process exit codes of hostrunner.
package exitcodes

// In run-once mode the exit code summarises the whole run. Crashes, timeouts
// and NOT_RUN records are test outcomes and exit with TestFailure; only a
// suite that could not be attempted at all exits with RuntimeErr.
const (
	Success     = 0 // Every record met its expectation
	TestFailure = 1 // At least one record missed its expectation
	RuntimeErr  = 2 // Configuration error or unusable host
)
