package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-hashdiff"
)

// errMismatch reports a completed comparison that found differences.
var errMismatch = errors.New("file does not match the reference")

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "compare <file> <reference.json>",
		Short: "Check a file against a reference hash document",
		Long: "Hash a file and compare it with a reference hash document. Exits with\n" +
			"status 1 when any path differs and 2 on errors.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.options(cmd)
			if err != nil {
				return err
			}
			c, err := hashdiff.CompareFile(args[0], args[1], opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.Equal() {
				if !quiet {
					fmt.Fprintf(out, "match: %d paths compared\n", c.Compared)
				}
				return nil
			}
			if !quiet {
				fmt.Fprintln(out, renderDifferences(c.Differences))
			}
			return fmt.Errorf("%w: %d paths differ", errMismatch, len(c.Differences))
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print nothing; report through the exit status only")
	return cmd
}

func renderDifferences(diffs []hashdiff.Difference) string {
	rows := make([][]string, 0, len(diffs))
	for _, d := range diffs {
		rows = append(rows, []string{d.Path, string(d.Kind), shortDigest(d.Actual), shortDigest(d.Reference)})
	}
	return renderTable([]string{"Path", "Kind", "Actual", "Reference"}, rows)
}

func shortDigest(d string) string {
	if d == "" {
		return "-"
	}
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
