package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"dedupe/internal/config"
	"dedupe/internal/indexer"
	"dedupe/internal/resolve"
	"dedupe/internal/server"
	"dedupe/internal/storage/sqlite"
)

// Console holds the streams the operator interacts with. Log output goes to
// Err so it never mixes with listings on Out.
type Console struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdConsole returns the process's standard streams.
func StdConsole() Console {
	return Console{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// App ties together configuration, the index store, the indexer, and the
// resolution engine.
type App struct {
	cfg     config.Config
	console Console
	logger  *log.Logger
	store   *sqlite.Store
	indexer *indexer.Indexer
}

// New opens the index named by cfg and constructs an App around it.
func New(cfg config.Config, console Console) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := log.NewWithOptions(console.Err, log.Options{
		Prefix: "dedupe",
		Level:  cfg.Level(),
	})

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	idx, err := indexer.New(store, cfg.ChunkSize, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create indexer: %w", err)
	}

	db := cfg.DBPath
	if err := idx.Exclude(db, db+"-wal", db+"-shm", db+"-journal"); err != nil {
		store.Close()
		return nil, err
	}

	logger.Debug("index opened", "db", cfg.DBPath)
	return &App{cfg: cfg, console: console, logger: logger, store: store, indexer: idx}, nil
}

// Close releases the index.
func (a *App) Close() error {
	return a.store.Close()
}

// Scan rebuilds the index from root.
func (a *App) Scan(ctx context.Context, root string) (indexer.ScanSummary, error) {
	normalized, err := config.NormalizeRoot(root)
	if err != nil {
		return indexer.ScanSummary{}, err
	}
	return a.indexer.ResetAndScan(ctx, normalized)
}

// View prints every duplicate group without touching anything.
func (a *App) View(ctx context.Context) error {
	return a.resolver().View(ctx)
}

// Dedupe interactively resolves every duplicate group.
func (a *App) Dedupe(ctx context.Context) (resolve.Summary, error) {
	return a.resolver().Dedupe(ctx)
}

// Serve runs the read-only report server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return server.New(a.indexer, a.logger).Start(ctx, a.cfg.ListenAddr)
}

// Indexer exposes the underlying indexer instance.
func (a *App) Indexer() *indexer.Indexer {
	return a.indexer
}

func (a *App) resolver() *resolve.Resolver {
	return resolve.New(a.indexer, a.console.In, a.console.Out, a.logger)
}
