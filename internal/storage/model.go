package storage

import (
	"context"
	"time"
)

// Record is one indexed regular file and the digest of its content.
type Record struct {
	Path   string
	Digest string
}

// DuplicateGroup is a digest shared by at least two records. Paths are listed
// in index order; Count equals len(Paths) when the group was filled in.
type DuplicateGroup struct {
	Digest string   `json:"digest"`
	Count  int      `json:"count"`
	Paths  []string `json:"paths,omitempty"`
}

// ScanState captures bookkeeping for the most recent completed scan.
type ScanState struct {
	RootPath   string    `json:"rootPath"`
	FinishedAt time.Time `json:"finishedAt"`
	Files      int64     `json:"files"`
	Bytes      int64     `json:"bytes"`
}

// ScanTx receives the records of one full scan. Records become visible only
// once Commit succeeds.
type ScanTx interface {
	Insert(ctx context.Context, record Record) error
	Commit(ctx context.Context, state ScanState) error
	Rollback() error
}
