package agent

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"
)

// ProcessHandle wraps a running agent process. Wait forwards SIGINT and
// SIGTERM to the child so a Ctrl-C in the user's shell interrupts the agent
// rather than orphaning it.
type ProcessHandle struct {
	cmd *exec.Cmd
}

// start launches cmd connected to the caller's terminal with the merged
// environment applied.
func start(cmd *exec.Cmd, workDir string, env map[string]string) (*ProcessHandle, error) {
	cmd.Dir = workDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = mergeEnv(env)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}
	return &ProcessHandle{cmd: cmd}, nil
}

// mergeEnv appends extra entries to the inherited environment in
// deterministic order.
func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// PID returns the child's process id.
func (h *ProcessHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Signal delivers a signal to the child.
func (h *ProcessHandle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return errors.New("agent process not started")
	}
	return h.cmd.Process.Signal(sig)
}

// Wait blocks until the agent exits, forwarding SIGINT/SIGTERM received by
// daf to the child. Returns the child's exit code. The agent exiting nonzero
// is not an error here; callers decide what an exit code means.
func (h *ProcessHandle) Wait() (int, error) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	for {
		select {
		case sig := <-signals:
			_ = h.Signal(sig)
		case err := <-done:
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode(), nil
			}
			if err != nil {
				return -1, fmt.Errorf("failed waiting for agent: %w", err)
			}
			return 0, nil
		}
	}
}
