package main

import (
	"os"

	"github.com/spf13/cobra"

	"dedupe/internal/app"
	"dedupe/internal/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	dbPath     string
	chunkSize  int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "dedupe",
		Short: "Find and remove duplicate files by content digest",
		Long: `dedupe indexes a directory tree by SHA-512 content digest and helps you
remove duplicate files.

  dedupe scan <root>   rebuild the index from a directory tree
  dedupe view          list every group of identical files
  dedupe dedupe        choose one file to keep per group, delete the rest
  dedupe serve         serve a read-only JSON report of the index`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/dedupe/config.ini, or $DEDUPE_CONFIG)")
	flags.StringVar(&opts.dbPath, "db", defaults.DBPath, "path of the index database")
	flags.IntVar(&opts.chunkSize, "chunk-size", defaults.ChunkSize, "bytes read per step while hashing")
	flags.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn, error")

	root.AddCommand(
		newScanCmd(opts),
		newViewCmd(opts),
		newDedupeCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig layers explicitly set flags over the file and environment
// configuration.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := o.configFile
	if path == "" {
		path = os.Getenv("DEDUPE_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = o.chunkSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) openApp(cmd *cobra.Command, adjust func(*config.Config)) (*app.App, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}
	return app.New(cfg, app.Console{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	})
}
