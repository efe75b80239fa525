package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Wake-word voice assistant core with routed agents and activity memory",
		Long: strings.TrimSpace(`sentinel is a personal voice assistant core.

It waits for a wake word, captures a command, routes it to a worker
agent, speaks the answer, and remembers what happened. Use the CLI to
onboard, run the assistant loop, send one-shot commands, and check
runtime readiness.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newSayCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.sentinel config and workspace",
		Long:    "Create the default configuration file and workspace directory for a new installation.",
		Example: "  sentinel onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard()
		},
	}
}

func newRunCommand() *cobra.Command {
	var (
		debug   bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the wake-word assistant loop on this terminal",
		Long:  "Start the conversation loop: type a line containing the wake word to begin a session.",
		Example: strings.Join([]string{
			"  sentinel run",
			"  sentinel run --debug --events",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(debug, verbose)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&verbose, "events", false, "Print status events to stderr")
	return cmd
}

func newSayCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "say <command>",
		Short:   "Route and execute one command without the wake flow",
		Args:    cobra.MinimumNArgs(1),
		Example: "  sentinel say \"play some jazz\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			return say(strings.Join(args, " "), debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  sentinel status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return status()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  sentinel version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
