package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"taubench/evaluation/metrics"
	"taubench/internal/diff"
	jsonx "taubench/internal/shared/json"

	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	var (
		showDiff bool
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "report <checkpoint-or-report.json>",
		Short: "Summarize a checkpoint or report: average reward, pass^k and failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := loadResults(args[0])
			if err != nil {
				return err
			}
			report := metrics.BuildReport(results)
			if err := printReport(cmd.OutOrStdout(), report, showDiff, isTTY()); err != nil {
				return err
			}
			if outPath != "" {
				if err := metrics.WriteReport(outPath, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cyan("📄 Report:"), outPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print the state diff of every state mismatch")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the rebuilt report to this path")
	return cmd
}

// loadResults reads either a checkpoint (a JSON array of results) or a
// report written by tau run.
func loadResults(path string) ([]metrics.EpisodeResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		report, err := metrics.ReadReport(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return report.Results, nil
	}
	var results []metrics.EpisodeResult
	if err := jsonx.Unmarshal(trimmed, &results); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return results, nil
}

func printReport(w io.Writer, report *metrics.Report, showDiff, colored bool) error {
	fmt.Fprint(w, report.Format())

	summary, err := metrics.Summarize(report.Results)
	if err != nil {
		return err
	}
	outcomes := make([]string, 0, len(summary.Counts))
	for outcome := range summary.Counts {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	fmt.Fprintln(w, bold("Outcomes"))
	for _, outcome := range outcomes {
		fmt.Fprintf(w, "  %-15s %d\n", outcome, summary.Counts[metrics.Outcome(outcome)])
	}
	if len(summary.Failures) == 0 {
		fmt.Fprintln(w, green("All trials passed."))
		return nil
	}

	differ := diff.NewGenerator(3, colored)
	fmt.Fprintln(w, bold("Failures"))
	for _, f := range summary.Failures {
		switch f.Outcome {
		case metrics.OutcomeStateMismatch:
			fmt.Fprintf(w, "  %s %s: %s\n", red("❌"), f.Key, f.Outcome)
			if showDiff && f.Detail != "" {
				fmt.Fprint(w, differ.Colorize(f.Detail))
			}
		default:
			fmt.Fprintf(w, "  %s %s: %s %s\n", red("❌"), f.Key, f.Outcome, gray(firstLine(f.Detail)))
		}
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
