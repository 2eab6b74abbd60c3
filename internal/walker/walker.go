// Package walker enumerates the regular files beneath a directory.
package walker

import (
	"context"
	"os"
	"path/filepath"

	"dedupe/internal/fault"
)

// VisitFunc is called once per regular file. Returning an error stops the walk.
type VisitFunc func(path string) error

type frame struct {
	dir     string
	entries []os.DirEntry
	next    int
}

// Walk visits every regular file under root, depth-first: a subdirectory is
// fully walked before its later siblings. Directories are never visited, and
// symbolic links and special files are skipped. Sibling order is whatever the
// directory listing returns.
//
// Pending directories live on an explicit stack, so nesting depth is bounded
// only by memory.
func Walk(ctx context.Context, root string, visit VisitFunc) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fault.IO("list", root, err)
	}
	stack := []*frame{{dir: root, entries: entries}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[top.next]
		top.next++

		path := filepath.Join(top.dir, entry.Name())
		mode := entry.Type()
		switch {
		case mode.IsDir():
			children, err := os.ReadDir(path)
			if err != nil {
				return fault.IO("list", path, err)
			}
			stack = append(stack, &frame{dir: path, entries: children})
		case mode.IsRegular():
			if err := visit(path); err != nil {
				return err
			}
		}
	}

	return nil
}
