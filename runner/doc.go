// Package runner drives a suite of test records through one or more host
// processes and turns what the hosts print and return into per-record results.
//
// The main components are:
//   - Attribute: maps one invocation's merged output and return code onto
//     the records it carried, deciding which record a crash belongs to
//   - scheduler: plans single, batched and parallel invocations, fans out
//     parallel work and re-runs failed batch members on their own
//   - invoker: runs one host invocation end to end (log cycling, launch,
//     wait, crash collection, attribution, artifact saving)
//   - Runner: validates the suite, keeps the machine clean of stray host
//     processes and aggregates results into a RunnerResult
package runner
