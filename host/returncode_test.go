package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReturnCode(t *testing.T) {
	tests := []struct {
		rc       int
		sentinel int
		want     Outcome
	}{
		{rc: 0, sentinel: DefaultTestFailureReturnCode, want: OutcomeClean},
		{rc: 0xF, sentinel: DefaultTestFailureReturnCode, want: OutcomeTestFailure},
		{rc: 0xF, sentinel: 3, want: OutcomeCrash},
		{rc: 3, sentinel: 3, want: OutcomeTestFailure},
		{rc: 139, sentinel: DefaultTestFailureReturnCode, want: OutcomeCrash},
		{rc: 1, sentinel: DefaultTestFailureReturnCode, want: OutcomeCrash},
		{rc: -1, sentinel: DefaultTestFailureReturnCode, want: OutcomeCrash},
		{rc: TimeoutReturnCode, sentinel: DefaultTestFailureReturnCode, want: OutcomeTimeout},
		{rc: CancelledReturnCode, sentinel: DefaultTestFailureReturnCode, want: OutcomeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyReturnCode(tt.rc, tt.sentinel))
		})
	}
}
