package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	jsonx "taubench/internal/shared/json"

	"github.com/spf13/cobra"
)

func newTasksCommand() *cobra.Command {
	var domain, split string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of a domain split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newCatalog().Get(domain)
			if err != nil {
				return err
			}
			tasks, err := d.Tasks(split)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tID\tUSER\tSCORING\tACTIONS\tINSTRUCTION")
			for i, t := range tasks {
				scoring := "action"
				if t.ScoresOutputs() {
					scoring = "output"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", i, t.ID, t.UserID, scoring, len(t.Actions), truncate(t.Instruction, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "airline", "Domain name")
	cmd.Flags().StringVar(&split, "split", "", "Task split (default test)")
	return cmd
}

func newToolsCommand() *cobra.Command {
	var (
		domain string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an agent may call in a domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newCatalog().Get(domain)
			if err != nil {
				return err
			}
			registry, err := d.NewRegistry(nil)
			if err != nil {
				return err
			}
			defs := registry.Definitions()
			if asJSON {
				data, err := jsonx.MarshalStable(defs, "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			for _, def := range defs {
				name := bold(def.Name)
				if registry.IsTerminal(def.Name) {
					name += " " + gray("(ends the episode)")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n    %s\n", name, def.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "airline", "Domain name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tool definitions as JSON")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
