package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dedupe/internal/config"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <root-path>",
		Short: "Replace the index with the files found under root-path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s files (%s) under %s, %d duplicate groups\n",
				humanize.Comma(summary.Files), humanize.Bytes(uint64(summary.Bytes)), summary.Root, summary.Groups)
			return nil
		},
	}
}

func newViewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "List every group of identical files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.View(cmd.Context())
		},
	}
}

func newDedupeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Keep one file per duplicate group and delete the others",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Dedupe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d groups, skipped %d, deleted %d files\n",
				summary.Resolved, summary.Skipped, summary.Deleted)
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON report of the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, func(cfg *config.Config) {
				if cmd.Flags().Changed("listen") {
					cfg.ListenAddr = listen
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", config.Default().ListenAddr, "HTTP listen address")
	return cmd
}
