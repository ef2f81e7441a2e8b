package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-hashdiff"
)

type commandContext struct {
	format      string
	skipAttrs   []string
	skipPaths   []string
	filtersPath string
	logLevel    string
	logFormat   string
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "hashdiff",
		Short:         "Fingerprint and compare HDF5, netCDF-4 and GeoTIFF files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.format, "format", "", "Input format: hdf5, netcdf4 or geotiff (detected when empty)")
	flags.StringArrayVar(&ctx.skipAttrs, "skip-attribute", nil, "Attribute name to leave out of every node (repeatable)")
	flags.StringArrayVar(&ctx.skipPaths, "skip-path", nil, "Group or variable path to leave out (repeatable)")
	flags.StringVar(&ctx.filtersPath, "filters", "", "TOML filter table replacing the built-in one")
	flags.StringVar(&ctx.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.StringVar(&ctx.logFormat, "log-format", "auto", "Log format: auto, text or json")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newCompareCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))

	return rootCmd
}

// options turns the persistent flags into library options.
func (c *commandContext) options(cmd *cobra.Command) ([]hashdiff.Option, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), c.logLevel, c.logFormat)
	if err != nil {
		return nil, err
	}
	format, err := hashdiff.ParseFormat(c.format)
	if err != nil {
		return nil, err
	}

	opts := []hashdiff.Option{
		hashdiff.WithLogger(logger),
		hashdiff.WithFormat(format),
		hashdiff.WithSkippedAttributes(c.skipAttrs...),
		hashdiff.WithSkippedPaths(c.skipPaths...),
	}

	if c.filtersPath != "" {
		table, err := loadFilterTable(c.filtersPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hashdiff.WithFilterTable(table))
		logger.Debug("loaded filter table", slog.String("path", c.filtersPath))
	}
	return opts, nil
}

func loadFilterTable(path string) (*hashdiff.FilterTable, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filter table %s: %w", path, err)
	}
	return hashdiff.LoadFilterTableFile(osfs.New("/"), filepath.ToSlash(abs))
}
