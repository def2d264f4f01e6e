package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"capturehub/internal/actions"
	"capturehub/internal/config"
)

var (
	planViper  = config.New()
	planOutput string
)

var planCmd = &cobra.Command{
	Use:   "plan [commands...]",
	Short: "Print the ordered action list for a run",
	Long: `Builds the action list a run would execute from flags, environment
and config file, and prints it. Positional arguments are passed through
as run-commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(planViper, configPath); err != nil {
			return err
		}
		if len(args) > 0 {
			planViper.Set(config.KeyArguments, args)
		}
		cfg, err := config.Load(planViper)
		if err != nil {
			return err
		}
		return writePlan(cmd.OutOrStdout(), cfg.Plan, planOutput)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	if err := config.BindPlanFlags(planViper, planCmd.Flags()); err != nil {
		panic(err)
	}
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "yaml", "yaml or json")
}

// dropBlankEntries removes empty test and command names left by sloppy
// comma-separated flags such as --tests=a,,b.
var dropBlankEntries = actions.ProcessorFunc(func(list []actions.Action) ([]actions.Action, error) {
	out := list[:0]
	for _, a := range list {
		a.Tests = nonBlank(a.Tests)
		a.Commands = nonBlank(a.Commands)
		a.Targets = nonBlank(a.Targets)
		if (a.Kind == actions.KindRunTests && len(a.Tests) == 0) ||
			(a.Kind == actions.KindRunCommands && len(a.Commands) == 0) ||
			(a.Kind == actions.KindDryRun && len(a.Targets) == 0) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
})

func nonBlank(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writePlan(w io.Writer, opts actions.Options, format string) error {
	list, err := actions.NewProvider(opts, dropBlankEntries).Get()
	if err != nil {
		return err
	}
	if list == nil {
		list = []actions.Action{}
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encode plan: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
