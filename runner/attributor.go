package runner

import (
	"regexp"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/hostrunner/host"
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// AttributionInput is everything known about one finished host invocation
type AttributionInput struct {
	// Records in the order the host was told to run them
	Records     []types.TestRecord
	Mode        types.ExecutionMode
	Output      string
	ReturnCode  int
	Sentinel    int
	CrashReport string
	HostLog     string
}

type verdict int

const (
	verdictNone verdict = iota
	verdictPass
	verdictFail
)

// markerScan is what the host's output says about each record
type markerScan struct {
	started  []bool
	offset   []int // byte offset of the record's first start marker
	verdicts []verdict
	// lastRun is the index of the record named by the last start marker, or -1
	lastRun int
}

var resultTokens = map[string]verdict{
	"PASS":   verdictPass,
	"PASSED": verdictPass,
	"FAIL":   verdictFail,
	"FAILED": verdictFail,
}

// Attribute assigns one result to every record of an invocation.
//
// A record is started when a line names its id. A line whose first or last
// word is PASS or FAIL is a result marker for the record it names, or else for
// the record started last. The record named by the last start marker is the
// one that was running when the host exited, so it takes the blame for a
// failing return code; records before it keep their own markers and records
// after it never ran.
func Attribute(in AttributionInput) []*types.RunResult {
	results := make([]*types.RunResult, len(in.Records))
	for i, rec := range in.Records {
		results[i] = types.NewRunResult(rec, types.TestStatusUnknown, in.Mode)
	}
	if len(results) == 0 {
		return results
	}

	output := stripansi.Strip(in.Output)
	scan := scanMarkers(output, in.Records)
	outcome := host.ClassifyReturnCode(in.ReturnCode, in.Sentinel)

	switch {
	case outcome == host.OutcomeClean:
		attributeClean(results, scan)
	case scan.lastRun < 0:
		attributeUnmarked(results, outcome)
	default:
		attributeAbnormal(results, scan, outcome)
	}

	enrich(results, in, output, scan)
	return results
}

func scanMarkers(output string, records []types.TestRecord) markerScan {
	n := len(records)
	scan := markerScan{
		started:  make([]bool, n),
		offset:   make([]int, n),
		verdicts: make([]verdict, n),
		lastRun:  -1,
	}
	matchers := make([]*regexp.Regexp, n)
	for i, rec := range records {
		matchers[i] = regexp.MustCompile(`(^|[^\w-])` + regexp.QuoteMeta(rec.ID) + `($|[^\w-])`)
	}

	orphan := verdictNone
	pos := 0
	for _, line := range strings.SplitAfter(output, "\n") {
		lineStart := pos
		pos += len(line)
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		named := namedRecord(text, records, matchers)

		if v := resultVerdict(text); v != verdictNone {
			target := named
			if target < 0 {
				target = scan.lastRun
			}
			if target < 0 {
				orphan = v
				continue
			}
			scan.verdicts[target] = v
			continue
		}

		if named >= 0 {
			if !scan.started[named] {
				scan.started[named] = true
				scan.offset[named] = lineStart
			}
			scan.lastRun = named
		}
	}

	// Only a single record can own a result marker that precedes every start marker
	if n == 1 && scan.verdicts[0] == verdictNone {
		scan.verdicts[0] = orphan
	}
	return scan
}

func resultVerdict(line string) verdict {
	fields := strings.Fields(line)
	for _, f := range []string{fields[0], fields[len(fields)-1]} {
		if v, ok := resultTokens[strings.TrimRight(f, ":.!")]; ok {
			return v
		}
	}
	return verdictNone
}

// namedRecord returns the index of the record whose id appears in line as a
// whole word, preferring the longest id, or -1
func namedRecord(line string, records []types.TestRecord, matchers []*regexp.Regexp) int {
	best := -1
	for i, m := range matchers {
		if !strings.Contains(line, records[i].ID) || !m.MatchString(line) {
			continue
		}
		if best < 0 || len(records[i].ID) > len(records[best].ID) {
			best = i
		}
	}
	return best
}

// attributeClean handles a zero return code. Result markers decide; the last
// started record is vouched for by the clean exit.
func attributeClean(results []*types.RunResult, scan markerScan) {
	if scan.lastRun < 0 && len(results) == 1 {
		// A host that prints nothing still answers for a lone record
		setVerdict(results[0], scan.verdicts[0], types.TestStatusPassed)
		return
	}
	for i, r := range results {
		switch {
		case scan.verdicts[i] != verdictNone:
			setVerdict(r, scan.verdicts[i], types.TestStatusUnknown)
		case scan.started[i] && i == scan.lastRun:
			r.Status = types.TestStatusPassed
		default:
			r.Status = types.TestStatusUnknown
			r.ErrorKind = types.ErrorKindAttributionAmbiguity
		}
	}
}

// attributeUnmarked handles a failing return code with no start markers. The
// first record is assumed to have been running and the rest never ran.
func attributeUnmarked(results []*types.RunResult, outcome host.Outcome) {
	status, kind := outcomeStatus(outcome)
	results[0].Status = status
	results[0].ErrorKind = kind
	if len(results) > 1 && outcome == host.OutcomeCrash {
		results[0].ErrorKind = types.ErrorKindAttributionAmbiguity
	}
	for _, r := range results[1:] {
		markNotRun(r, outcome)
	}
}

// attributeAbnormal handles a failing return code when at least one record
// was started
func attributeAbnormal(results []*types.RunResult, scan markerScan, outcome host.Outcome) {
	last := scan.lastRun
	for i, r := range results {
		switch {
		case i < last:
			setVerdict(r, scan.verdicts[i], types.TestStatusUnknown)
			if r.Status == types.TestStatusUnknown {
				r.ErrorKind = types.ErrorKindAttributionAmbiguity
				if outcome == host.OutcomeCancelled {
					r.ErrorKind = types.ErrorKindCancelled
				}
			}
		case i == last:
			r.Status, r.ErrorKind = outcomeStatus(outcome)
		default:
			markNotRun(r, outcome)
		}
	}
}

func outcomeStatus(outcome host.Outcome) (types.TestStatus, types.ErrorKind) {
	switch outcome {
	case host.OutcomeClean:
		return types.TestStatusPassed, types.ErrorKindNone
	case host.OutcomeTestFailure:
		return types.TestStatusFailed, types.ErrorKindTestReportedFailure
	case host.OutcomeTimeout:
		return types.TestStatusTimedOut, types.ErrorKindTimeout
	case host.OutcomeCancelled:
		return types.TestStatusUnknown, types.ErrorKindCancelled
	default:
		return types.TestStatusCrashed, types.ErrorKindCrash
	}
}

func setVerdict(r *types.RunResult, v verdict, fallback types.TestStatus) {
	switch v {
	case verdictPass:
		r.Status = types.TestStatusPassed
	case verdictFail:
		r.Status = types.TestStatusFailed
		r.ErrorKind = types.ErrorKindTestReportedFailure
	default:
		r.Status = fallback
	}
}

func markNotRun(r *types.RunResult, outcome host.Outcome) {
	r.Status = types.TestStatusNotRun
	if outcome == host.OutcomeCancelled {
		r.ErrorKind = types.ErrorKindCancelled
	}
}

// enrich attaches the output slice, return code, host log and crash report
func enrich(results []*types.RunResult, in AttributionInput, output string, scan markerScan) {
	unmarked := scan.lastRun < 0
	for i, r := range results {
		switch {
		case len(results) == 1:
			r.Output = output
		case scan.started[i]:
			r.Output = output[scan.offset[i]:sliceEnd(scan, i, len(output))]
		case unmarked && i == 0:
			r.Output = output
		}

		if r.Status == types.TestStatusNotRun {
			continue
		}
		if in.ReturnCode != host.TimeoutReturnCode && in.ReturnCode != host.CancelledReturnCode {
			r.SetReturnCode(in.ReturnCode)
		}
		if r.Status != types.TestStatusPassed {
			r.HostLog = in.HostLog
		}
		if r.Status == types.TestStatusCrashed {
			r.CrashReport = in.CrashReport
			if r.CrashReport == "" {
				r.CrashReport = CrashReportUnavailable
			}
		}
	}
}

// sliceEnd is the offset of the next record's start marker after record i
func sliceEnd(scan markerScan, i int, end int) int {
	for j := range scan.started {
		if j != i && scan.started[j] && scan.offset[j] > scan.offset[i] && scan.offset[j] < end {
			end = scan.offset[j]
		}
	}
	return end
}
