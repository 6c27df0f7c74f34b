package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ygrebnov/tracefs"
)

func newHistCommand(opts *rootOptions) *cobra.Command {
	var (
		system string
		event  string
		keys   []string
		values []string
		sort   []string
		size   int
		name   string
	)

	cmd := &cobra.Command{
		Use:   "hist EVENT",
		Short: "Build and install a histogram trigger on EVENT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event = args[0]
			keys = lo.Uniq(keys)
			if len(keys) == 0 {
				return fatalf(cmd, "at least one --key is required")
			}

			provider := tracefs.NewFormatEventProvider(opts.traceFS())
			h, err := tracefs.NewHistogramDescriptor(provider, system, event, keys[0], tracefs.KeyNormal, tracefs.WithLogger(opts.logger()))
			if err != nil {
				return fatalf(cmd, "building histogram: %v", err)
			}
			defer h.Close()

			for _, k := range keys[1:] {
				if err := h.AddKey(k, tracefs.KeyNormal); err != nil {
					return fatalf(cmd, "adding key %q: %v", k, err)
				}
			}
			for _, v := range lo.Uniq(values) {
				if err := h.AddValue(v); err != nil {
					return fatalf(cmd, "adding value %q: %v", v, err)
				}
			}
			if len(sort) > 0 {
				if err := h.AddSortKeys(sort...); err != nil {
					return fatalf(cmd, "setting sort order: %v", err)
				}
			}
			if size > 0 {
				if err := h.SetSize(size); err != nil {
					return fatalf(cmd, "setting size: %v", err)
				}
			}
			if name != "" {
				if err := h.SetName(name); err != nil {
					return fatalf(cmd, "setting name: %v", err)
				}
			}

			fs := opts.traceFS()
			if opts.dryRun {
				plan, err := h.Show(fs, opts.instance, tracefs.VerbStart)
				if err != nil {
					return fatalf(cmd, "rendering plan: %v", err)
				}
				printPlan(cmd, fmt.Sprintf("hist trigger for %s:", event), plan)
				return nil
			}
			if err := h.Install(fs, opts.instance, tracefs.VerbStart); err != nil {
				return fatalf(cmd, "installing trigger: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed hist trigger on %s\n", event)
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "event subsystem (default: resolve by name alone)")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "histogram key (repeatable; first is primary)")
	cmd.Flags().StringSliceVar(&values, "val", nil, "histogram value field (repeatable)")
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "sort key, in order (repeatable)")
	cmd.Flags().IntVar(&size, "size", 0, "histogram bucket-count hint")
	cmd.Flags().StringVar(&name, "name", "", "shared histogram instance name")
	return cmd
}
