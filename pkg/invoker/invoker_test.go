package invoker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// TestHelperProcess isn't a real test. It stands in for the analysis
// program; the behavior is picked by the object argument.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	var args []string
	for i, arg := range os.Args {
		if arg == "--" {
			args = os.Args[i+1:]
			break
		}
	}
	has := func(s string) bool {
		for _, a := range args {
			if a == s {
				return true
			}
		}
		return false
	}

	switch {
	case has("scenario"):
		fmt.Println("w/ 2 adds, 1 removes, 0 delays, 0 barriers.")
		fmt.Println("5 schedules enumerated in 3.2s.")
	case has("sleepy"):
		fmt.Println("w/ 1 adds, 1 removes, 0 delays, 0 barriers.")
		time.Sleep(30 * time.Second)
		fmt.Println("5 schedules enumerated in 30.0s.")
	case has("crash"):
		fmt.Println("w/ 1 adds, 1 removes, 0 delays, 0 barriers.")
		os.Exit(3)
	case has("wrapped-timeout"):
		os.Exit(WrapperTimeoutExit)
	case has("chatty"):
		fmt.Print(strings.Repeat("x", 4096))
	default:
		fmt.Print(strings.Join(args, " "))
	}
	os.Exit(0)
}

func helperCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	return exec.CommandContext(ctx, os.Args[0], cs...)
}

func newHelperInvoker(t *testing.T, cfg Config) *Invoker {
	t.Helper()
	if cfg.Program == "" {
		cfg.Program = "scal"
	}
	cfg.Env = append(cfg.Env, "GO_WANT_HELPER_PROCESS=1")
	inv, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	inv.command = helperCommand
	return inv
}

func point(object string) sweep.Point {
	return sweep.Point{Object: object, Mode: "none", Adds: 2, Removes: 1}
}

func TestArgv(t *testing.T) {
	inv, err := New(Config{Program: "/opt/scal"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/scal", "msq", "-mode", "none",
		"-adds", "2", "-removes", "1", "-delays", "0", "-barriers", "0"}, inv.Argv(point("msq")))

	p := point("msq")
	p.Mode = "counting-no-verify"
	p.Show = "all"
	assert.Equal(t, []string{"/opt/scal", "msq", "-mode", "counting-no-verify", "-show", "all",
		"-adds", "2", "-removes", "1", "-delays", "0", "-barriers", "0"}, inv.Argv(p))
}

func TestArgvWithWrapper(t *testing.T) {
	inv, err := New(Config{Program: "scal", Wrapper: "timeout", Timeout: 1500 * time.Millisecond}, nil)
	require.NoError(t, err)
	argv := inv.Argv(point("dq"))
	assert.Equal(t, []string{"timeout", "1.5s", "scal", "dq"}, argv[:4])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no program", Config{}},
		{"negative timeout", Config{Program: "p", Timeout: -time.Second}},
		{"wrapper without timeout", Config{Program: "p", Wrapper: "timeout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestRunCapturesOutput(t *testing.T) {
	inv := newHelperInvoker(t, Config{})

	res := inv.Run(context.Background(), point("scenario"))
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, "ok", res.Outcome())
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Text, "5 schedules enumerated in 3.2s.")
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	inv := newHelperInvoker(t, Config{Timeout: 500 * time.Millisecond, WaitDelay: time.Second})

	start := time.Now()
	res := inv.Run(context.Background(), point("sleepy"))
	assert.Less(t, time.Since(start), 20*time.Second)

	assert.True(t, res.TimedOut)
	assert.Equal(t, "timeout", res.Outcome())
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeTimeout))
	assert.False(t, errors.IsFatal(res.Err))
	assert.Contains(t, res.Text, "w/ 1 adds")
	assert.NotContains(t, res.Text, "schedules enumerated")
}

func TestRunCrashIsNotFatal(t *testing.T) {
	inv := newHelperInvoker(t, Config{})

	res := inv.Run(context.Background(), point("crash"))
	require.Error(t, res.Err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "failed", res.Outcome())
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeInvocation))
	assert.False(t, errors.IsFatal(res.Err))
	assert.Contains(t, res.Text, "w/ 1 adds")
}

func TestRunWrapperTimeoutStatus(t *testing.T) {
	inv := newHelperInvoker(t, Config{Wrapper: "timeout", Timeout: time.Second})

	res := inv.Run(context.Background(), point("wrapped-timeout"))
	assert.True(t, res.TimedOut)
	assert.Equal(t, WrapperTimeoutExit, res.ExitCode)
}

func TestRunMissingProgram(t *testing.T) {
	inv, err := New(Config{Program: "/nonexistent/sweepline-test-program"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	res := inv.Run(context.Background(), point("msq"))
	require.Error(t, res.Err)
	assert.Empty(t, res.Text)
	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeInvocation))
}

func TestRunOutputLimit(t *testing.T) {
	inv := newHelperInvoker(t, Config{MaxOutputBytes: 100})

	res := inv.Run(context.Background(), point("chatty"))
	require.NoError(t, res.Err)
	assert.Len(t, res.Text, 100)
}

func TestRunCanceled(t *testing.T) {
	inv := newHelperInvoker(t, Config{WaitDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res := inv.Run(ctx, point("sleepy"))
	assert.False(t, res.TimedOut)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeInvocation))
}
