package main

import (
	"os"
	"runtime/debug"

	"taubench/internal/domains"
	"taubench/internal/domains/airline"
	"taubench/internal/domains/retail"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func newCatalog() *domains.Catalog {
	return domains.NewCatalog(map[string]domains.Constructor{
		airline.Name: airline.New,
		retail.Name:  retail.New,
	})
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tau",
		Short: "Simulate customer-service episodes and score agents against ground truth",
		Long: `tau drives agents through scripted customer-service tasks against a simulated
backend, scores every episode by output matching or ground-truth replay, and
aggregates many trials into average reward and pass^k.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ./tau.yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newReportCommand())
	root.AddCommand(newTasksCommand())
	root.AddCommand(newToolsCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("tau %s\n", appVersion())
		},
	}
}

// appVersion reports the module version from build info, or "dev".
func appVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
