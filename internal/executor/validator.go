package executor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandValidator runs a configured shell command in the workspace root as
// the validation gate. An empty command passes trivially.
type CommandValidator struct {
	command string
	timeout time.Duration
}

// NewCommandValidator creates a validator for the given command line. A
// timeout <= 0 defaults to 5 minutes.
func NewCommandValidator(command string, timeout time.Duration) *CommandValidator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &CommandValidator{command: command, timeout: timeout}
}

// Validate runs the command with dir as working directory. Non-zero exit or
// timeout fails the gate.
func (v *CommandValidator) Validate(ctx context.Context, dir string) error {
	if strings.TrimSpace(v.command) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", v.command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > 2048 {
			tail = tail[len(tail)-2048:]
		}
		return fmt.Errorf("%q: %w: %s", v.command, err, strings.TrimSpace(tail))
	}
	return nil
}
