// Package invoker runs the analysis program once per sweep point.
//
// Invocation never fails a sweep. A process that cannot start, crashes,
// exits non-zero or overruns its time budget still produces a Result whose
// Text holds whatever standard output was captured; extraction turns the
// absent metrics into missing values.
package invoker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/sweep"
)

// WrapperTimeoutExit is the exit status timeout(1) uses when it kills the
// wrapped command.
const WrapperTimeoutExit = 124

// Config describes how the analysis program is invoked
type Config struct {
	// Program is the path of the analysis executable
	Program string `yaml:"program" mapstructure:"program"`
	// Timeout bounds one invocation. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Wrapper delegates the timeout to an external command (e.g. "timeout")
	// invoked as: wrapper <duration> program args...
	Wrapper string `yaml:"wrapper,omitempty" mapstructure:"wrapper"`
	// WaitDelay bounds how long output pipes are drained after the process
	// is killed
	WaitDelay time.Duration `yaml:"wait_delay,omitempty" mapstructure:"wait_delay"`
	// Dir is the working directory of the process
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
	// Env is appended to the inherited environment
	Env []string `yaml:"env,omitempty" mapstructure:"env"`
	// MaxOutputBytes caps captured stdout; extra output is discarded
	MaxOutputBytes int64 `yaml:"max_output_bytes,omitempty" mapstructure:"max_output_bytes"`
}

// DefaultConfig returns the invoker defaults
func DefaultConfig() Config {
	return Config{
		WaitDelay:      2 * time.Second,
		MaxOutputBytes: 16 << 20,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if strings.TrimSpace(c.Program) == "" {
		return errors.New(errors.ErrorTypeConfig, "invoker program is required")
	}
	if c.Timeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "invoker timeout must not be negative").
			WithDetail("timeout", c.Timeout)
	}
	if c.Wrapper != "" && c.Timeout == 0 {
		return errors.New(errors.ErrorTypeConfig, "a timeout wrapper needs a timeout").
			WithDetail("wrapper", c.Wrapper)
	}
	return nil
}

// Result is the outcome of one invocation
type Result struct {
	Argv     []string
	Text     string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	// ExitCode is -1 when the process did not exit on its own
	ExitCode int
	// Err is set when the process failed to start, was killed, or exited
	// non-zero. It is informational.
	Err error
}

// OK reports whether the process ran to completion with status zero
func (r *Result) OK() bool { return r.Err == nil && !r.TimedOut }

// Outcome labels the result for logs and metrics
func (r *Result) Outcome() string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.Err != nil:
		return "failed"
	default:
		return "ok"
	}
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Invoker executes the analysis program. It holds no state between runs.
type Invoker struct {
	config  Config
	logger  *zap.Logger
	command commandFunc
}

// New creates an invoker
func New(config Config, logger *zap.Logger) (*Invoker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		config:  config,
		logger:  logger.With(zap.String("component", "invoker")),
		command: exec.CommandContext,
	}, nil
}

// Config returns the invoker configuration
func (i *Invoker) Config() Config { return i.config }

// Argv builds the command line for p. Flags appear only for dimensions that
// are present on the point.
func (i *Invoker) Argv(p sweep.Point) []string {
	var argv []string
	if i.config.Wrapper != "" {
		argv = append(argv, i.config.Wrapper, formatSeconds(i.config.Timeout))
	}
	argv = append(argv, i.config.Program, p.Object)
	if p.Mode != "" {
		argv = append(argv, "-"+sweep.DimMode, p.Mode)
	}
	if p.Show != "" {
		argv = append(argv, "-"+sweep.DimShow, p.Show)
	}
	return append(argv,
		"-"+sweep.DimAdds, strconv.Itoa(p.Adds),
		"-"+sweep.DimRemoves, strconv.Itoa(p.Removes),
		"-"+sweep.DimDelays, strconv.Itoa(p.Delays),
		"-"+sweep.DimBarriers, strconv.Itoa(p.Barriers),
	)
}

// Run executes the program once for p and blocks until it exits or its
// budget elapses. The returned Result is never nil.
func (i *Invoker) Run(ctx context.Context, p sweep.Point) *Result {
	argv := i.Argv(p)
	res := &Result{Argv: argv, ExitCode: -1}

	runCtx := ctx
	if i.config.Timeout > 0 && i.config.Wrapper == "" {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
	}

	cmd := i.command(runCtx, argv[0], argv[1:]...)
	cmd.Dir = i.config.Dir
	if len(i.config.Env) > 0 {
		cmd.Env = append(os.Environ(), i.config.Env...)
	}
	if i.config.WaitDelay > 0 {
		cmd.WaitDelay = i.config.WaitDelay
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = limit(&stdout, i.config.MaxOutputBytes)
	cmd.Stderr = limit(&stderr, 64<<10)

	i.logger.Debug("invoking", zap.Strings("argv", argv))

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Text = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		res.TimedOut = true
		res.Err = errors.Wrap(err, errors.ErrorTypeTimeout, "invocation exceeded its budget").
			WithDetail("timeout", i.config.Timeout)
	case ctx.Err() != nil:
		res.Err = errors.Wrap(ctx.Err(), errors.ErrorTypeInvocation, "invocation canceled")
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if i.config.Wrapper != "" && res.ExitCode == WrapperTimeoutExit {
				res.TimedOut = true
				res.Err = errors.New(errors.ErrorTypeTimeout, "invocation exceeded its budget").
					WithDetail("timeout", i.config.Timeout).
					WithDetail("wrapper", i.config.Wrapper)
			} else {
				res.Err = errors.Wrap(err, errors.ErrorTypeInvocation, "program exited with non-zero status").
					WithDetail("exit_code", res.ExitCode)
			}
		} else {
			res.Err = errors.Wrap(err, errors.ErrorTypeInvocation, "program could not be run").
				WithDetail("program", argv[0])
		}
	}

	fields := []zap.Field{
		zap.String("point", p.String()),
		zap.String("outcome", res.Outcome()),
		zap.Duration("duration", res.Duration),
		zap.Int("stdout_bytes", len(res.Text)),
	}
	if res.Err != nil {
		i.logger.Warn("invocation did not complete", append(fields, zap.Error(res.Err))...)
	} else {
		i.logger.Debug("invocation complete", fields...)
	}
	return res
}

// formatSeconds renders d the way timeout(1) accepts it
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

// limitedWriter keeps the first max bytes and silently drops the rest so
// that a chatty process never blocks on a full pipe.
type limitedWriter struct {
	w       io.Writer
	max     int64
	written int64
}

func limit(w io.Writer, n int64) io.Writer {
	if n <= 0 {
		return w
	}
	return &limitedWriter{w: w, max: n}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		return n, nil
	}
	if int64(n) > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}

// String renders argv as a shell-like command line for logs
func (r *Result) String() string {
	return fmt.Sprintf("%s (%s, %s)", strings.Join(r.Argv, " "), r.Outcome(), r.Duration.Round(time.Millisecond))
}
