package flags

import (
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestValidateTestFailureCode(t *testing.T) {
	for _, v := range []int{1, 0xF, 255} {
		assert.NoError(t, validateTestFailureCode(v))
	}
	for _, v := range []int{0, -1, 256} {
		err := validateTestFailureCode(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "between 1 and 255")
	}
}

func TestFlagActions(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		shouldError bool
	}{
		{"defaults", []string{"app"}, false},
		{"valid failure code", []string{"app", "--test-failure-code", "3"}, false},
		{"zero failure code", []string{"app", "--test-failure-code", "0"}, true},
		{"negative concurrency", []string{"app", "--concurrency", "-2"}, true},
		{"explicit concurrency", []string{"app", "--concurrency", "4"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := &cli.App{
				Flags:  []cli.Flag{TestFailureCode, Concurrency},
				Action: func(ctx *cli.Context) error { return nil },
			}
			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKillProcessIsRepeatable(t *testing.T) {
	app := &cli.App{
		Flags: []cli.Flag{KillProcess},
		Action: func(ctx *cli.Context) error {
			assert.Equal(t, []string{"Editor", "CrashReporter"}, ctx.StringSlice(KillProcess.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app", "--kill-process", "Editor", "--kill-process", "CrashReporter"}))
}
