package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTestStatus(t *testing.T) {
	st, err := ParseTestStatus("PASSED")
	require.NoError(t, err)
	assert.Equal(t, TestStatusPassed, st)

	st, err = ParseTestStatus(" timed_out ")
	require.NoError(t, err)
	assert.Equal(t, TestStatusTimedOut, st)

	_, err = ParseTestStatus("exploded")
	assert.Error(t, err)
}

func TestTestRecord_Validate(t *testing.T) {
	assert.NoError(t, TestRecord{ID: "t1", Script: "/abs/t1.py"}.Validate())
	assert.ErrorContains(t, TestRecord{Script: "/abs/t1.py"}.Validate(), "id is required")
	assert.ErrorContains(t, TestRecord{ID: "t1"}.Validate(), "script path is required")
	assert.ErrorContains(t, TestRecord{ID: "t1", Script: "rel/t1.py"}.Validate(), "must be absolute")
	assert.ErrorContains(t, TestRecord{ID: "t1", Script: "/abs/t1.py", Timeout: -time.Second}.Validate(), "negative")
}

func TestTestRecord_HostConfigKey(t *testing.T) {
	a := TestRecord{ExtraArgs: []string{"--a", "b"}}
	b := TestRecord{ExtraArgs: []string{"--a", "b"}}
	c := TestRecord{ExtraArgs: []string{"--a b"}}
	assert.Equal(t, a.HostConfigKey(), b.HostConfigKey())
	assert.NotEqual(t, a.HostConfigKey(), c.HostConfigKey())
}

func TestRunResult_Finalize(t *testing.T) {
	t.Run("default expectation is pass", func(t *testing.T) {
		r := NewRunResult(TestRecord{ID: "t1"}, TestStatusPassed, ModeSingle)
		r.Duration = -time.Second
		r.Finalize()
		assert.True(t, r.Finalized())
		assert.True(t, r.Passed())
		assert.Equal(t, time.Duration(0), r.Duration, "duration is clamped to zero")
	})

	t.Run("failure against default expectation", func(t *testing.T) {
		r := NewRunResult(TestRecord{ID: "t1"}, TestStatusCrashed, ModeBatched)
		r.Finalize()
		assert.False(t, r.Passed())
		assert.ErrorContains(t, r.MatchErr, "expected status passed, got crashed")
	})

	t.Run("custom matcher", func(t *testing.T) {
		record := TestRecord{ID: "t1", Expect: MatcherFunc(func(r *RunResult) error {
			if r.Status == TestStatusFailed {
				return nil
			}
			return errors.New("should have failed")
		})}
		r := NewRunResult(record, TestStatusFailed, ModeSingle)
		r.Finalize()
		assert.True(t, r.Passed())
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		r := NewRunResult(TestRecord{ID: "t1"}, TestStatusPassed, ModeSingle)
		r.Finalize()
		r.Status = TestStatusFailed
		r.Finalize()
		assert.NoError(t, r.MatchErr)
	})
}

func TestRunResult_Summary(t *testing.T) {
	r := NewRunResult(TestRecord{ID: "t2"}, TestStatusCrashed, ModeBatched)
	r.SetReturnCode(139)
	r.ErrorKind = ErrorKindCrash
	assert.Equal(t, "t2: crashed (rc=139) [crash]", r.Summary())
}
