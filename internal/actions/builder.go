package actions

import (
	"fmt"
	"slices"
)

const maxPort = 65535

// Builder accumulates run options. List options extend on every call;
// scalar options keep the last value.
type Builder struct {
	tests          []string
	commands       []string
	dryRunFor      []string
	reset          bool
	port           int
	sslPort        int
	raiseOnFailure bool
	resultsDest    string
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddTests(tests []string) *Builder {
	b.tests = append(b.tests, tests...)
	return b
}

func (b *Builder) AddCommands(commands []string) *Builder {
	b.commands = append(b.commands, commands...)
	return b
}

func (b *Builder) Reset(reset bool) *Builder {
	b.reset = reset
	return b
}

// AsDryRunFor lists browsers that should only report which tests they
// would run.
func (b *Builder) AsDryRunFor(browsers []string) *Builder {
	b.dryRunFor = append(b.dryRunFor, browsers...)
	return b
}

func (b *Builder) WithLocalServerPort(port int) *Builder {
	b.port = port
	return b
}

func (b *Builder) WithLocalServerSslPort(port int) *Builder {
	b.sslPort = port
	return b
}

func (b *Builder) RaiseOnFailure(raise bool) *Builder {
	b.raiseOnFailure = raise
	return b
}

// PrintingResultsWhenFinished writes results to dest once the run ends.
// An empty dest disables printing.
func (b *Builder) PrintingResultsWhenFinished(dest string) *Builder {
	b.resultsDest = dest
	return b
}

// Build materializes the ordered action list. Setup steps always come
// before the run steps, whatever order the builder was called in.
func (b *Builder) Build() ([]Action, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	var list []Action
	if b.reset {
		list = append(list, Action{Kind: KindReset})
	}
	if len(b.dryRunFor) > 0 {
		list = append(list, Action{Kind: KindDryRun, Targets: slices.Clone(b.dryRunFor)})
	}
	if b.port > 0 || b.sslPort > 0 {
		list = append(list, Action{Kind: KindBindPorts, Port: b.port, SSLPort: b.sslPort})
	}
	if len(b.tests) > 0 {
		list = append(list, Action{Kind: KindRunTests, Tests: slices.Clone(b.tests)})
	}
	if len(b.commands) > 0 {
		list = append(list, Action{Kind: KindRunCommands, Commands: slices.Clone(b.commands)})
	}
	if b.raiseOnFailure {
		list = append(list, Action{Kind: KindRaiseOnFailure})
	}
	if b.resultsDest != "" {
		list = append(list, Action{Kind: KindPrintResults, Destination: b.resultsDest})
	}
	return list, nil
}

func (b *Builder) validate() error {
	if b.port < 0 || b.port > maxPort {
		return fmt.Errorf("%w: port %d out of range", ErrMisconfigured, b.port)
	}
	if b.sslPort < 0 || b.sslPort > maxPort {
		return fmt.Errorf("%w: ssl port %d out of range", ErrMisconfigured, b.sslPort)
	}
	if b.port > 0 && b.port == b.sslPort {
		return fmt.Errorf("%w: port and ssl port are both %d", ErrMisconfigured, b.port)
	}
	return nil
}
