package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/robert-malhotra/go-hashdiff"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "List the nodes of a file as they are hashed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.options(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "=== %s ===\n\n", args[0])
			return hashdiff.Walk(args[0], func(n *hashdiff.Node) error {
				printNode(out, n)
				return nil
			}, opts...)
		},
	}
}

func printNode(w io.Writer, n *hashdiff.Node) {
	indent := strings.Repeat("  ", depth(n.Path))
	fmt.Fprintf(w, "%s%s %q:\n", indent, cases.Title(language.Und).String(n.Kind.String()), n.Path)
	if len(n.Dimensions) > 0 {
		fmt.Fprintf(w, "%s  Dims: %v\n", indent, n.Dimensions)
	}
	if n.Array != nil {
		fmt.Fprintf(w, "%s  Shape: %v (%T)\n", indent, n.Array.Shape, n.Array.Values)
		if n.Array.Fill != nil {
			fmt.Fprintf(w, "%s  Fill: %v\n", indent, n.Array.Fill)
		}
	}
	names := make([]string, 0, len(n.Attributes))
	for name := range n.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s  @%s = %v\n", indent, name, n.Attributes[name])
	}
}

func depth(p string) int {
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}
