package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"dedupe/internal/digest"
	"dedupe/internal/storage"
	"dedupe/internal/walker"
)

// RecordStore describes the persistence operations required by the indexer.
type RecordStore interface {
	BeginScan(ctx context.Context) (storage.ScanTx, error)
	DuplicateGroups(ctx context.Context) ([]storage.DuplicateGroup, error)
	PathsFor(ctx context.Context, digest string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Count(ctx context.Context) (int64, error)
	ScanState(ctx context.Context) (storage.ScanState, bool, error)
}

// ScanSummary reports the outcome of a completed scan.
type ScanSummary struct {
	Root     string
	Files    int64
	Bytes    int64
	Groups   int
	Duration time.Duration
}

// Status summarizes the current contents of the index.
type Status struct {
	KnownFiles int64              `json:"knownFiles"`
	Groups     int                `json:"groups"`
	LastScan   *storage.ScanState `json:"lastScan,omitempty"`
}

// Indexer maintains the digest index of a single directory tree.
type Indexer struct {
	store     RecordStore
	chunkSize int
	logger    *log.Logger
	now       func() time.Time
	excluded  map[string]struct{}
}

// New constructs an Indexer backed by the supplied store. Files are read in
// chunks of chunkSize bytes while digesting.
func New(store RecordStore, chunkSize int, logger *log.Logger) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	if chunkSize <= 0 {
		chunkSize = digest.DefaultChunkSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Indexer{
		store:     store,
		chunkSize: chunkSize,
		logger:    logger,
		now:       time.Now,
		excluded:  make(map[string]struct{}),
	}, nil
}

// Exclude keeps the given files out of every later scan. The app uses it for
// the index database and its journal files.
func (idx *Indexer) Exclude(paths ...string) error {
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve excluded path %q: %w", path, err)
		}
		idx.excluded[filepath.Clean(abs)] = struct{}{}
	}
	return nil
}

// ResetAndScan discards the whole index and rebuilds it from root. The rebuild
// runs in a single store transaction: if any file cannot be listed or read the
// previous index is kept as it was.
func (idx *Indexer) ResetAndScan(ctx context.Context, root string) (ScanSummary, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ScanSummary{}, fmt.Errorf("resolve scan root %q: %w", root, err)
	}
	root = filepath.Clean(abs)

	engine, err := digest.New(idx.chunkSize)
	if err != nil {
		return ScanSummary{}, err
	}

	started := idx.now()
	idx.logger.Info("scanning", "root", root)

	tx, err := idx.store.BeginScan(ctx)
	if err != nil {
		return ScanSummary{}, err
	}
	defer tx.Rollback()

	summary := ScanSummary{Root: root}
	err = walker.Walk(ctx, root, func(path string) error {
		if _, skip := idx.excluded[path]; skip {
			idx.logger.Debug("excluded", "path", path)
			return nil
		}
		sum, n, err := engine.File(path)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, storage.Record{Path: path, Digest: sum}); err != nil {
			return err
		}
		summary.Files++
		summary.Bytes += n
		idx.logger.Debug("indexed", "path", path, "digest", shortDigest(sum))
		return nil
	})
	if err != nil {
		return ScanSummary{}, fmt.Errorf("scan %s: %w", root, err)
	}

	finished := idx.now()
	state := storage.ScanState{
		RootPath:   root,
		FinishedAt: finished,
		Files:      summary.Files,
		Bytes:      summary.Bytes,
	}
	if err := tx.Commit(ctx, state); err != nil {
		return ScanSummary{}, err
	}

	groups, err := idx.store.DuplicateGroups(ctx)
	if err != nil {
		return ScanSummary{}, err
	}
	summary.Groups = len(groups)
	summary.Duration = finished.Sub(started)

	idx.logger.Info("scan complete",
		"root", root,
		"files", humanize.Comma(summary.Files),
		"size", humanize.Bytes(uint64(summary.Bytes)),
		"groups", summary.Groups,
		"took", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

// DuplicateGroups returns every digest shared by at least two files, with
// counts but without paths.
func (idx *Indexer) DuplicateGroups(ctx context.Context) ([]storage.DuplicateGroup, error) {
	return idx.store.DuplicateGroups(ctx)
}

// PathsFor lists the files recorded under digest, in the order the index
// assigns them.
func (idx *Indexer) PathsFor(ctx context.Context, digest string) ([]string, error) {
	return idx.store.PathsFor(ctx, digest)
}

// Snapshot returns every duplicate group with its member paths filled in.
// Groups whose membership shrank below two between the two queries are dropped.
func (idx *Indexer) Snapshot(ctx context.Context) ([]storage.DuplicateGroup, error) {
	groups, err := idx.store.DuplicateGroups(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]storage.DuplicateGroup, 0, len(groups))
	for _, group := range groups {
		paths, err := idx.store.PathsFor(ctx, group.Digest)
		if err != nil {
			return nil, err
		}
		if len(paths) < 2 {
			continue
		}
		group.Paths = paths
		group.Count = len(paths)
		snapshot = append(snapshot, group)
	}
	return snapshot, nil
}

// DeleteRecord drops the record for path.
func (idx *Indexer) DeleteRecord(ctx context.Context, path string) error {
	return idx.store.Delete(ctx, filepath.Clean(path))
}

// Status reports the number of indexed files, the number of duplicate groups
// and the bookkeeping of the last completed scan, if any.
func (idx *Indexer) Status(ctx context.Context) (Status, error) {
	count, err := idx.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	groups, err := idx.store.DuplicateGroups(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{KnownFiles: count, Groups: len(groups)}
	state, ok, err := idx.store.ScanState(ctx)
	if err != nil {
		return Status{}, err
	}
	if ok {
		status.LastScan = &state
	}
	return status, nil
}

func shortDigest(sum string) string {
	if len(sum) > 16 {
		return sum[:16]
	}
	return sum
}
