package runner

import "time"

const (
	// DefaultTestTimeout is used for records that declare no timeout
	DefaultTestTimeout = 10 * time.Minute

	// MaxReasonableConcurrency caps auto-determined concurrency to avoid resource exhaustion
	MaxReasonableConcurrency = 32

	// SlotDirName holds the per-slot log directories of parallel invocations
	SlotDirName = "host-slots"

	// ArtifactDirEnvVar tells a host running a single record where the test may write its own files
	ArtifactDirEnvVar = "HOSTRUNNER_ARTIFACT_DIR"
	// ArtifactRootEnvVar is exported to every host. Each record of the
	// invocation owns the directory <root>/<id>, which exists before launch.
	ArtifactRootEnvVar = "HOSTRUNNER_ARTIFACT_ROOT"

	// CrashReportUnavailable stands in for a crash report that could not be collected
	CrashReportUnavailable = "crash report unavailable: the host exited abnormally and left no crash artifacts"
)
