package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-hashdiff"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Write the hash document of a file",
		Long: "Hash every group, variable or band of a file and write the resulting\n" +
			"hash document as JSON, to --output or to standard output.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.options(cmd)
			if err != nil {
				return err
			}
			if output != "" {
				if err := hashdiff.CreateHashFile(args[0], output, opts...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
				return nil
			}
			doc, err := hashdiff.GetHashes(args[0], opts...)
			if err != nil {
				return err
			}
			return hashdiff.WriteDocument(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to this path instead of standard output")
	return cmd
}
