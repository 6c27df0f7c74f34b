package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ygrebnov/tracefs"
)

// rootOptions holds the flags/config shared by every subcommand, loaded
// either from flags or from an optional viper-backed config file.
type rootOptions struct {
	mount    string
	instance string
	dryRun   bool
	verbose  bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	root := &cobra.Command{
		Use:   "tracefsctl",
		Short: "Build and install tracefs histogram and synthetic-event triggers",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("TRACEFSCTL")
			v.AutomaticEnv()
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
			}
			if opts.mount == "" {
				opts.mount = v.GetString("mount")
			}
			if opts.instance == "" {
				opts.instance = v.GetString("instance")
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "optional YAML config file (mount, instance)")
	root.PersistentFlags().StringVar(&opts.mount, "mount", "", "tracing filesystem mount point (default: auto-detect)")
	root.PersistentFlags().StringVar(&opts.instance, "instance", "", "tracing instance name (default: top-level instance)")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "print the commands instead of installing them")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newHistCommand(opts), newSynthCommand(opts))
	return root
}

func (o *rootOptions) logger() tracefs.Logger {
	if !o.verbose {
		return tracefs.NewNoopLogger()
	}
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return tracefs.NewLogrusLogger(l)
}

func (o *rootOptions) traceFS() tracefs.TraceFS {
	return tracefs.NewTraceFS(o.mount)
}

func printPlan(cmd *cobra.Command, heading, plan string) {
	bold := color.New(color.FgCyan, color.Bold)
	bold.Fprintln(cmd.OutOrStdout(), heading)
	fmt.Fprint(cmd.OutOrStdout(), plan)
}

func fatalf(cmd *cobra.Command, format string, args ...interface{}) error {
	color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	return fmt.Errorf(format, args...)
}
