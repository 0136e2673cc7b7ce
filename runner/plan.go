package runner

import (
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// Invocation is one planned host process and the records it runs, in order
type Invocation struct {
	Records []types.TestRecord
	Mode    types.ExecutionMode
}

// IDs returns the record ids of the invocation
func (inv Invocation) IDs() []string {
	ids := make([]string, len(inv.Records))
	for i, r := range inv.Records {
		ids[i] = r.ID
	}
	return ids
}

// Plan splits a suite into a parallel fan-out phase and a sequential phase
type Plan struct {
	Parallel   []Invocation
	Sequential []Invocation
}

// Len returns the number of planned invocations
func (p Plan) Len() int {
	return len(p.Parallel) + len(p.Sequential)
}

// PlanInvocations decides the shape of every host invocation for records.
//
// Isolated records get their own invocation. Parallel-safe records sharing a
// host configuration are split into at most concurrency contiguous chunks that
// run at the same time. The remaining records are batched by host
// configuration, keeping declared order. forceIsolation runs every record on
// its own.
func PlanInvocations(records []types.TestRecord, concurrency int, forceIsolation bool) Plan {
	var plan Plan
	if forceIsolation {
		for _, r := range records {
			plan.Sequential = append(plan.Sequential, Invocation{Records: []types.TestRecord{r}, Mode: types.ModeSingle})
		}
		return plan
	}

	batchIndex := make(map[string]int)
	var parallelKeys []string
	parallelGroups := make(map[string][]types.TestRecord)

	for _, r := range records {
		switch {
		case r.Isolate:
			plan.Sequential = append(plan.Sequential, Invocation{Records: []types.TestRecord{r}, Mode: types.ModeSingle})
		case r.ParallelSafe:
			key := r.HostConfigKey()
			if _, ok := parallelGroups[key]; !ok {
				parallelKeys = append(parallelKeys, key)
			}
			parallelGroups[key] = append(parallelGroups[key], r)
		default:
			key := r.HostConfigKey()
			if i, ok := batchIndex[key]; ok {
				plan.Sequential[i].Records = append(plan.Sequential[i].Records, r)
				plan.Sequential[i].Mode = types.ModeBatched
				continue
			}
			batchIndex[key] = len(plan.Sequential)
			plan.Sequential = append(plan.Sequential, Invocation{Records: []types.TestRecord{r}, Mode: types.ModeSingle})
		}
	}

	for _, key := range parallelKeys {
		for _, chunk := range chunkRecords(parallelGroups[key], concurrency) {
			plan.Parallel = append(plan.Parallel, Invocation{Records: chunk, Mode: types.ModeParallel})
		}
	}
	return plan
}

// chunkRecords splits records into min(k, len) contiguous chunks whose sizes
// differ by at most one
func chunkRecords(records []types.TestRecord, k int) [][]types.TestRecord {
	n := len(records)
	if n == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	chunks := make([][]types.TestRecord, 0, k)
	base, rem := n/k, n%k
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}
		chunks = append(chunks, records[start:start+size])
		start += size
	}
	return chunks
}
