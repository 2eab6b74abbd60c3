// Package resolve lists duplicate groups and walks the operator through keeping
// one file per group.
package resolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"dedupe/internal/fault"
	"dedupe/internal/storage"
)

// Prompt is written after each group listing in dedupe mode.
const Prompt = "Which file would you like to keep? (or 'skip')\n> "

// SkipReply leaves a group untouched.
const SkipReply = "skip"

// Index is the part of the duplicate index the resolver needs.
type Index interface {
	Snapshot(ctx context.Context) ([]storage.DuplicateGroup, error)
	DeleteRecord(ctx context.Context, path string) error
}

// Outcome is the terminal state of one group.
type Outcome int

const (
	// Unchanged means the operator skipped the group.
	Unchanged Outcome = iota
	// Resolved means every member but one was deleted.
	Resolved
)

func (o Outcome) String() string {
	if o == Resolved {
		return "resolved"
	}
	return "unchanged"
}

// Selection is a parsed operator reply.
type Selection struct {
	Skip bool
	Keep int
}

// ParseSelection interprets a reply for a group of count members. Surrounding
// whitespace is ignored. Anything other than "skip" or an index in [0, count)
// fails with an error matching fault.ErrInvalidInput.
func ParseSelection(reply string, count int) (Selection, error) {
	reply = strings.TrimSpace(reply)
	if reply == SkipReply {
		return Selection{Skip: true}, nil
	}
	keep, err := strconv.Atoi(reply)
	if err != nil || keep < 0 || keep >= count {
		return Selection{}, fault.InvalidInput(reply)
	}
	return Selection{Keep: keep}, nil
}

// Summary totals a dedupe pass.
type Summary struct {
	Resolved int
	Skipped  int
	Deleted  int
}

// Resolver runs view and dedupe passes over a snapshot of the index. Groups
// are handled strictly one after another, and the index is not queried again
// once the first prompt is shown.
type Resolver struct {
	index  Index
	in     *bufio.Reader
	out    io.Writer
	remove func(path string) error
	parse  func(reply string, count int) (Selection, error)
	logger *log.Logger
}

// New creates a Resolver reading replies from in and writing listings to out.
func New(index Index, in io.Reader, out io.Writer, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		index:  index,
		in:     bufio.NewReader(in),
		out:    out,
		remove: os.Remove,
		parse:  ParseSelection,
		logger: logger,
	}
}

// View prints every duplicate group: the digest once, then each member path
// indented. Nothing is modified. An empty index prints nothing.
func (r *Resolver) View(ctx context.Context) error {
	groups, err := r.index.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, group := range groups {
		fmt.Fprintln(r.out, group.Digest)
		for _, path := range group.Paths {
			fmt.Fprintf(r.out, "\t- %s\n", path)
		}
	}
	return nil
}

// Dedupe prompts for every duplicate group in turn. Choosing an index deletes
// every other member from disk and from the index; "skip" leaves the group as
// it is. Invalid replies are reported and asked again. Any I/O or store
// failure stops the pass immediately.
func (r *Resolver) Dedupe(ctx context.Context) (Summary, error) {
	groups, err := r.index.Snapshot(ctx)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, deleted, err := r.resolveGroup(ctx, group)
		summary.Deleted += deleted
		if err != nil {
			return summary, err
		}
		switch outcome {
		case Resolved:
			summary.Resolved++
		default:
			summary.Skipped++
		}
		r.logger.Debug("group done", "digest", group.Digest, "outcome", outcome, "deleted", deleted)
	}

	r.logger.Info("dedupe complete",
		"resolved", summary.Resolved,
		"skipped", summary.Skipped,
		"deleted", summary.Deleted,
	)
	return summary, nil
}

func (r *Resolver) resolveGroup(ctx context.Context, group storage.DuplicateGroup) (Outcome, int, error) {
	fmt.Fprintln(r.out, group.Digest)
	for i, path := range group.Paths {
		fmt.Fprintf(r.out, "\t%d: %s\n", i, path)
	}

	for {
		fmt.Fprint(r.out, Prompt)
		reply, err := r.readLine()
		if err != nil {
			return Unchanged, 0, fault.IO("read selection", "", err)
		}

		// A reply typed after an interrupt must not delete anything.
		if err := ctx.Err(); err != nil {
			return Unchanged, 0, err
		}

		sel, err := r.parse(reply, len(group.Paths))
		if err != nil {
			if errors.Is(err, fault.ErrInvalidInput) {
				fmt.Fprintln(r.out, "Invalid input")
				r.logger.Debug("rejected reply", "error", err)
				continue
			}
			return Unchanged, 0, err
		}
		if sel.Skip {
			return Unchanged, 0, nil
		}

		deleted, err := r.deleteOthers(ctx, group.Paths, sel.Keep)
		return Resolved, deleted, err
	}
}

// deleteOthers removes every path except the one at keep, dropping each
// record right after its file. Once started it runs to completion even if ctx
// is cancelled, so no removed file is left in the index.
func (r *Resolver) deleteOthers(ctx context.Context, paths []string, keep int) (int, error) {
	ctx = context.WithoutCancel(ctx)

	deleted := 0
	for j, path := range paths {
		if j == keep {
			continue
		}
		if err := r.remove(path); err != nil {
			return deleted, fault.IO("delete", path, err)
		}
		deleted++
		if err := r.index.DeleteRecord(ctx, path); err != nil {
			return deleted, err
		}
		r.logger.Debug("deleted", "path", path)
	}
	return deleted, nil
}

func (r *Resolver) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return line, nil
}
