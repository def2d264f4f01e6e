package actions

import "fmt"

// Processor rewrites an action list. Processors may insert, drop or
// reorder actions and must not rely on running before or after any
// other processor.
type Processor interface {
	Process(list []Action) ([]Action, error)
}

// ProcessorFunc adapts a function into a Processor.
type ProcessorFunc func(list []Action) ([]Action, error)

func (f ProcessorFunc) Process(list []Action) ([]Action, error) {
	return f(list)
}

// Options are the run settings a driver passes on the command line.
type Options struct {
	Tests          []string `json:"tests" mapstructure:"tests"`
	Arguments      []string `json:"arguments" mapstructure:"arguments"`
	Reset          bool     `json:"reset" mapstructure:"reset"`
	DryRunFor      []string `json:"dry_run_for" mapstructure:"dry_run_for"`
	Port           int      `json:"port" mapstructure:"port"`
	SSLPort        int      `json:"ssl_port" mapstructure:"ssl_port"`
	TestOutput     string   `json:"test_output" mapstructure:"test_output"`
	RaiseOnFailure bool     `json:"raise_on_failure" mapstructure:"raise_on_failure"`
}

// Provider turns Options into the final action list.
type Provider struct {
	opts       Options
	processors []Processor
}

func NewProvider(opts Options, processors ...Processor) *Provider {
	return &Provider{opts: opts, processors: processors}
}

// Get builds the base list from a fresh Builder and runs it through every
// processor.
func (p *Provider) Get() ([]Action, error) {
	b := NewBuilder().
		AddTests(p.opts.Tests).
		AddCommands(p.opts.Arguments).
		Reset(p.opts.Reset).
		AsDryRunFor(p.opts.DryRunFor).
		WithLocalServerPort(p.opts.Port).
		WithLocalServerSslPort(p.opts.SSLPort).
		RaiseOnFailure(p.opts.RaiseOnFailure).
		PrintingResultsWhenFinished(p.opts.TestOutput)

	list, err := b.Build()
	if err != nil {
		return nil, err
	}
	for i, proc := range p.processors {
		list, err = proc.Process(list)
		if err != nil {
			return nil, fmt.Errorf("processor %d: %w", i, err)
		}
	}
	return list, nil
}
