package rerun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrEmptyCommand is returned when no command is configured.
var ErrEmptyCommand = errors.New("rerun command is empty")

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// Executor runs the external test command.
type Executor interface {
	// Execute runs the configured command with targets and then
	// passthrough appended.
	Execute(ctx context.Context, targets, passthrough []string) error
}

// Options configures a command executor.
type Options struct {
	// Command is the program and its leading arguments.
	Command []string
	// Timeout bounds a single run. Zero disables it.
	Timeout time.Duration
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Compile-time interface check.
var _ Executor = (*commandExecutor)(nil)

type commandExecutor struct {
	log  logrus.FieldLogger
	opts Options
}

// NewCommandExecutor creates an Executor that spawns opts.Command.
func NewCommandExecutor(log logrus.FieldLogger, opts Options) Executor {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	return &commandExecutor{
		log:  log.WithField("component", "rerun"),
		opts: opts,
	}
}

// Execute runs the command and waits for it to finish.
func (e *commandExecutor) Execute(ctx context.Context, targets, passthrough []string) error {
	if len(e.opts.Command) == 0 {
		return ErrEmptyCommand
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(e.opts.Command)-1+len(targets)+len(passthrough))
	argv = append(argv, e.opts.Command[1:]...)
	argv = append(argv, targets...)
	argv = append(argv, passthrough...)

	//nolint:gosec // Command comes from operator configuration.
	cmd := exec.CommandContext(ctx, e.opts.Command[0], argv...)
	cmd.Dir = e.opts.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = e.opts.Stdout
	cmd.Stderr = e.opts.Stderr

	display := strings.Join(e.opts.Command, " ")

	e.log.WithFields(logrus.Fields{
		"command": display,
		"targets": len(targets),
	}).Info("Running command")

	start := time.Now()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("running %s: %w", display, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Command: display, Code: exitErr.ExitCode()}
		}

		return fmt.Errorf("running %s: %w", display, err)
	}

	e.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Command finished")

	return nil
}
