package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuite_Validate(t *testing.T) {
	var nilSuite *Suite
	assert.Error(t, nilSuite.Validate())

	empty := &Suite{Name: "main"}
	assert.ErrorContains(t, empty.Validate(), "no tests")

	dup := &Suite{Name: "main", Records: []TestRecord{
		{ID: "t1", Script: "/t1.py"},
		{ID: "t1", Script: "/t1b.py"},
	}}
	assert.ErrorContains(t, dup.Validate(), "duplicate test id t1")

	ok := &Suite{Name: "main", Records: []TestRecord{
		{ID: "t1", Script: "/t1.py"},
		{ID: "t2", Script: "/t2.py"},
	}}
	assert.NoError(t, ok.Validate())
}

func TestSuite_Filter(t *testing.T) {
	s := &Suite{Name: "main", Records: []TestRecord{
		{ID: "t1", Suite: "smoke"},
		{ID: "t2", Suite: "periodic"},
		{ID: "t3", Suite: "smoke"},
	}}
	out := s.Filter(func(r TestRecord) bool { return r.Suite == "smoke" })
	require.Len(t, out.Records, 2)
	assert.Equal(t, "t1", out.Records[0].ID)
	assert.Equal(t, "t3", out.Records[1].ID)
	assert.Len(t, s.Records, 3)
}
