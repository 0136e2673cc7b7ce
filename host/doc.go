// Package host launches and supervises host processes.
//
// A host is an external program with an embedded interpreter that runs test
// scripts in-process. This package owns the process lifecycle: spawning with
// merged stdout and stderr, waiting with a timeout, graceful stop followed by
// a forced kill of the process tree, and classifying return codes.
package host
