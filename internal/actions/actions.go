// Package actions assembles the ordered list of steps a test run
// executes against captured browsers.
package actions

import (
	"context"
	"errors"
	"fmt"
)

// ErrMisconfigured is returned when builder options contradict each other.
var ErrMisconfigured = errors.New("action sequence misconfigured")

// Kind identifies what an Action does.
type Kind string

const (
	KindReset          Kind = "reset"
	KindDryRun         Kind = "dry-run"
	KindBindPorts      Kind = "bind-ports"
	KindRunTests       Kind = "run-tests"
	KindRunCommands    Kind = "run-commands"
	KindRaiseOnFailure Kind = "raise-on-failure"
	KindPrintResults   Kind = "print-results"
)

// Action is one step of a run. Only the fields relevant to Kind are set.
type Action struct {
	Kind        Kind     `json:"kind" yaml:"kind"`
	Tests       []string `json:"tests,omitempty" yaml:"tests,omitempty"`
	Commands    []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	Targets     []string `json:"targets,omitempty" yaml:"targets,omitempty"`
	Port        int      `json:"port,omitempty" yaml:"port,omitempty"`
	SSLPort     int      `json:"ssl_port,omitempty" yaml:"ssl_port,omitempty"`
	Destination string   `json:"destination,omitempty" yaml:"destination,omitempty"`
}

func (a Action) String() string {
	return string(a.Kind)
}

// Runner executes individual actions. Implementations live with the
// transport that talks to captured browsers.
type Runner interface {
	Run(ctx context.Context, action Action) error
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, action Action) error

func (f RunnerFunc) Run(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// Execute runs actions in order and stops at the first failure or when
// ctx is done.
func Execute(ctx context.Context, list []Action, runner Runner) error {
	for i, a := range list {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
		if err := runner.Run(ctx, a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
	}
	return nil
}
