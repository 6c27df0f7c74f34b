package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ygrebnov/tracefs"
)

func newSynthCommand(opts *rootOptions) *cobra.Command {
	var (
		name       string
		startEvent string
		endEvent   string
		matches    []string // "startField:endField:name"
		trace      []string
	)

	cmd := &cobra.Command{
		Use:   "synth NAME",
		Short: "Build and install a synthetic event named NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name = args[0]
			if startEvent == "" || endEvent == "" {
				return fatalf(cmd, "--start and --end are required")
			}
			if len(matches) == 0 {
				return fatalf(cmd, "at least one --match startField:endField:name is required")
			}

			provider := tracefs.NewFormatEventProvider(opts.traceFS())
			sSys, sEv := splitEventRef(startEvent)
			eSys, eEv := splitEventRef(endEvent)

			s, err := tracefs.NewSyntheticDescriptor(provider, name, sSys, sEv, eSys, eEv, tracefs.WithLogger(opts.logger()))
			if err != nil {
				return fatalf(cmd, "building synthetic event: %v", err)
			}
			defer s.Close()

			for _, m := range matches {
				parts := strings.Split(m, ":")
				if len(parts) != 3 {
					return fatalf(cmd, "invalid --match %q, want startField:endField:name", m)
				}
				if err := s.AddMatchField(parts[0], parts[1], parts[2]); err != nil {
					return fatalf(cmd, "adding match field %q: %v", m, err)
				}
			}
			if len(trace) > 0 {
				if err := s.Trace(trace...); err != nil {
					return fatalf(cmd, "adding trace action: %v", err)
				}
			}
			if err := s.Complete(); err != nil {
				return fatalf(cmd, "completing descriptor: %v", err)
			}

			fs := opts.traceFS()
			if opts.dryRun {
				plan, err := s.Show(fs, opts.instance)
				if err != nil {
					return fatalf(cmd, "rendering plan: %v", err)
				}
				printPlan(cmd, fmt.Sprintf("synthetic event %q:", name), plan)
				return nil
			}
			if err := s.Create(fs, opts.instance); err != nil {
				return fatalf(cmd, "creating synthetic event: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created synthetic event %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&startEvent, "start", "", "start event, as [system/]event")
	cmd.Flags().StringVar(&endEvent, "end", "", "end event, as [system/]event")
	cmd.Flags().StringSliceVar(&matches, "match", nil, "startField:endField:name match triple (repeatable)")
	cmd.Flags().StringSliceVar(&trace, "trace", nil, "synthetic field names to pass to the trace() action")
	return cmd
}

// splitEventRef splits a "[system/]event" reference; an absent system
// leaves the provider to resolve it by name alone.
func splitEventRef(ref string) (system, event string) {
	if idx := strings.IndexByte(ref, '/'); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return "", ref
}
