// Package effector runs the host-side shell commands a configuration
// manager issues to apply state SAI has no object for — interface
// bring-up, sysctl toggles, netlink-adjacent tooling invoked as
// subprocesses (spec.md §4.7, §6). Every argument is quoted before it
// reaches a shell, and a dry-run mode lets a manager log the command it
// would have run without executing it.
//
// Grounded on the teacher's pkg/newtlab.Provision, which threads ctx
// into exec.CommandContext for cancellation and captures
// CombinedOutput for error context, and on jingkaihe-matchlock's
// pkg/api ShellQuoteArgs round-trip test pattern (pkg/api/shell_test.go)
// for the quoting primitive itself.
package effector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/fabricwire/swssd/pkg/swutil"
)

// Quote renders args as a single shell-safe command line, escaping any
// argument containing characters a shell would otherwise interpret.
// Used only for logging — Run always executes argv directly via
// exec.CommandContext, never through a shell, so Quote's output is
// never itself re-parsed by a shell in this process.
func Quote(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return shellquote.Join(args...)
}

// Effector runs host commands on behalf of a configuration manager.
type Effector struct {
	dryRun bool
	name   string
}

// New creates an Effector identified by name (used in log lines), live
// by default.
func New(name string) *Effector {
	return &Effector{name: name}
}

// WithDryRun toggles dry-run mode: Run logs the command it would issue
// and returns success without executing anything, mirroring the
// teacher CLI's -x/--execute flag inverted to a --dry-run default-off
// switch (cmd/newtron/main.go).
func (e *Effector) WithDryRun(dryRun bool) *Effector {
	e.dryRun = dryRun
	return e
}

// Run executes argv[0] with argv[1:] as arguments, never through a
// shell. It returns combined stdout+stderr for error context, matching
// pkg/newtlab.Provision's exec.CommandContext + CombinedOutput shape.
func (e *Effector) Run(ctx context.Context, argv ...string) (string, error) {
	log := swutil.WithField("effector", e.name)
	if len(argv) == 0 {
		return "", fmt.Errorf("effector %s: empty command", e.name)
	}
	if e.dryRun {
		log.Infof("dry-run: %s", Quote(argv))
		return "", nil
	}

	log.Debugf("running: %s", Quote(argv))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		log.Warnf("command failed: %s: %v\n%s", Quote(argv), err, out.String())
		return out.String(), fmt.Errorf("effector %s: %s: %w", e.name, Quote(argv), err)
	}
	return out.String(), nil
}

// RunShell executes script through /bin/sh -c, for the rare case a
// manager needs shell features (pipelines, redirection) rather than a
// single argv. script itself is the caller's responsibility to build
// safely — prefer Run with Quote-logged argv wherever a single command
// suffices.
func (e *Effector) RunShell(ctx context.Context, script string) (string, error) {
	log := swutil.WithField("effector", e.name)
	if e.dryRun {
		log.Infof("dry-run (shell): %s", script)
		return "", nil
	}
	log.Debugf("running (shell): %s", script)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		log.Warnf("shell command failed: %s: %v\n%s", script, err, out.String())
		return out.String(), fmt.Errorf("effector %s: shell: %w", e.name, err)
	}
	return out.String(), nil
}
