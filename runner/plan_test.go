package runner

import (
	"testing"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanInvocations_BatchesByHostConfig(t *testing.T) {
	recs := []types.TestRecord{
		{ID: "t1"},
		{ID: "t2", ExtraArgs: []string{"--level", "a"}},
		{ID: "t3"},
		{ID: "t4", Isolate: true},
		{ID: "t5", ExtraArgs: []string{"--level", "a"}},
	}
	plan := PlanInvocations(recs, 4, false)

	assert.Empty(t, plan.Parallel)
	require.Len(t, plan.Sequential, 3)
	assert.Equal(t, []string{"t1", "t3"}, plan.Sequential[0].IDs())
	assert.Equal(t, types.ModeBatched, plan.Sequential[0].Mode)
	assert.Equal(t, []string{"t2", "t5"}, plan.Sequential[1].IDs())
	assert.Equal(t, []string{"t4"}, plan.Sequential[2].IDs())
	assert.Equal(t, types.ModeSingle, plan.Sequential[2].Mode)
	assert.Equal(t, 3, plan.Len())
}

func TestPlanInvocations_LoneRecordIsSingle(t *testing.T) {
	plan := PlanInvocations([]types.TestRecord{{ID: "t1"}}, 4, false)
	require.Len(t, plan.Sequential, 1)
	assert.Equal(t, types.ModeSingle, plan.Sequential[0].Mode)
}

func TestPlanInvocations_ForceIsolation(t *testing.T) {
	recs := []types.TestRecord{{ID: "t1"}, {ID: "t2", ParallelSafe: true}, {ID: "t3"}}
	plan := PlanInvocations(recs, 4, true)
	assert.Empty(t, plan.Parallel)
	require.Len(t, plan.Sequential, 3)
	for i, inv := range plan.Sequential {
		assert.Equal(t, types.ModeSingle, inv.Mode)
		assert.Equal(t, recs[i].ID, inv.Records[0].ID)
	}
}

func TestPlanInvocations_ParallelChunks(t *testing.T) {
	recs := []types.TestRecord{
		{ID: "t1", ParallelSafe: true},
		{ID: "t2", ParallelSafe: true},
		{ID: "t3", ParallelSafe: true},
		{ID: "t4", ParallelSafe: true},
		{ID: "t5"},
	}

	plan := PlanInvocations(recs, 2, false)
	require.Len(t, plan.Parallel, 2)
	assert.Equal(t, []string{"t1", "t2"}, plan.Parallel[0].IDs())
	assert.Equal(t, []string{"t3", "t4"}, plan.Parallel[1].IDs())
	assert.Equal(t, types.ModeParallel, plan.Parallel[0].Mode)
	require.Len(t, plan.Sequential, 1)
	assert.Equal(t, []string{"t5"}, plan.Sequential[0].IDs())

	// A limit of one is one sequential chunk
	plan = PlanInvocations(recs, 1, false)
	require.Len(t, plan.Parallel, 1)
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, plan.Parallel[0].IDs())
}

func TestChunkRecords(t *testing.T) {
	recs := make([]types.TestRecord, 7)
	chunks := chunkRecords(recs, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 2)

	assert.Len(t, chunkRecords(recs[:2], 5), 2)
	assert.Len(t, chunkRecords(recs, 0), 1)
	assert.Nil(t, chunkRecords(nil, 3))
}
