// Package gitexec provides the production parsers.ExecFunc: a thin
// os/exec.CommandContext wrapper, grounded on the teacher's detectBranch
// (internal/monitor/monitor.go) which shells out to "git" directly rather
// than a library. Tests inject their own fake ExecFunc instead of this one.
package gitexec

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// timeout bounds a single git invocation so a hung or missing binary can
// never wedge a watcher/dispatcher goroutine.
const timeout = 3 * time.Second

// Run is the real parsers.ExecFunc, run against the host's "git" binary.
func Run(cmd string, args []string, cwd string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = cwd

	var stdout bytes.Buffer
	c.Stdout = &stdout
	if err := c.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}
