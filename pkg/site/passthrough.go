package site

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/manifest"
)

// CopyEntry is a single file scheduled for passthrough copy.
type CopyEntry struct {
	Source  string
	Output  string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// ResolvePassthrough expands every passthrough pattern into the regular files
// it covers. Directories are copied recursively. A pattern that matches
// nothing is logged and skipped. When patterns overlap, the first one to
// produce an output path wins.
func ResolvePassthrough(logger *slog.Logger, cfg *Config) ([]CopyEntry, error) {
	var entries []CopyEntry
	seen := map[string]struct{}{}

	add := func(src string, info fs.FileInfo) {
		out := passthroughOutput(cfg, src)
		if _, dup := seen[out]; dup {
			return
		}
		seen[out] = struct{}{}
		entries = append(entries, CopyEntry{
			Source:  src,
			Output:  out,
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		})
	}

	for _, pattern := range cfg.PassthroughCopy {
		matches, err := filepath.Glob(filepath.FromSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("bad passthrough pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			logger.Warn("Passthrough pattern matched no files", "pattern", pattern)
			continue
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat passthrough source %s: %w", match, err)
			}
			if !info.IsDir() {
				if info.Mode().IsRegular() {
					add(match, info)
				}
				continue
			}

			err = filepath.WalkDir(match, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.Type().IsRegular() {
					return nil
				}
				fi, err := d.Info()
				if err != nil {
					return err
				}
				add(p, fi)
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk passthrough dir %s: %w", match, err)
			}
		}
	}

	logger.Debug("Resolved passthrough files", "patterns", len(cfg.PassthroughCopy), "files", len(entries))
	return entries, nil
}

// passthroughOutput maps a source path to its location in the output tree.
// Paths inside the input directory lose that prefix; anything else keeps its
// relative path, or just its base name if it would escape the output tree.
func passthroughOutput(cfg *Config, src string) string {
	rel, err := filepath.Rel(cfg.Dir.Input, src)
	if err != nil || escapes(rel) {
		rel = filepath.Clean(src)
		if filepath.IsAbs(rel) || escapes(rel) {
			rel = filepath.Base(src)
		}
	}
	return filepath.Join(cfg.Dir.Output, rel)
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// copyResult is shared by the copy workers.
type copyResult struct {
	mu      sync.Mutex
	copied  int
	skipped int
	bytes   int64
}

func (r *copyResult) add(copied bool, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if copied {
		r.copied++
		r.bytes += size
	} else {
		r.skipped++
	}
}

// CopyPassthrough copies entries into the output tree, at most
// Config.Concurrency at a time. With a manifest attached, files whose size and
// modification time are unchanged since the last copy are skipped as long as
// the output still exists.
func (b *Builder) CopyPassthrough(ctx context.Context, entries []CopyEntry) (copied, skipped int, bytes int64, err error) {
	var res copyResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			if b.isUnchanged(gctx, entry) {
				b.logger.Debug("Skipping unchanged passthrough file", "source", entry.Source)
				res.add(false, 0)
				return nil
			}

			if err := copyFile(entry); err != nil {
				return err
			}
			res.add(true, entry.Size)

			if b.manifest != nil {
				rec := manifest.FileRecord{
					OutputPath: entry.Output,
					SourcePath: entry.Source,
					Size:       entry.Size,
					ModTime:    entry.ModTime,
				}
				if err := b.manifest.Record(gctx, rec); err != nil {
					return fmt.Errorf("failed to record %s in manifest: %w", entry.Output, err)
				}
			}
			return nil
		})
	}

	err = g.Wait()
	return res.copied, res.skipped, res.bytes, err
}

func (b *Builder) isUnchanged(ctx context.Context, entry CopyEntry) bool {
	if b.manifest == nil {
		return false
	}
	rec, found, err := b.manifest.Lookup(ctx, entry.Output)
	if err != nil {
		b.logger.Warn("Manifest lookup failed, copying anyway", "output", entry.Output, "error", err)
		return false
	}
	if !found || !rec.Matches(entry.Size, entry.ModTime) {
		return false
	}
	if _, err = os.Stat(entry.Output); err != nil {
		return false
	}
	return true
}

// copyFile writes entry.Source to entry.Output atomically and carries over the
// source permission bits.
func copyFile(entry CopyEntry) error {
	if err := os.MkdirAll(filepath.Dir(entry.Output), 0755); err != nil {
		return fmt.Errorf("failed to create output dir for %s: %w", entry.Output, err)
	}

	src, err := os.Open(entry.Source)
	if err != nil {
		return fmt.Errorf("failed to open passthrough source: %w", err)
	}
	defer func(src *os.File) {
		_ = src.Close()
	}(src)

	if err = atomic.WriteFile(entry.Output, src); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", entry.Source, entry.Output, err)
	}
	if err = os.Chmod(entry.Output, entry.Mode.Perm()); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", entry.Output, err)
	}
	return nil
}

// forgetStale drops manifest records for outputs that no passthrough entry
// produces any more. The files themselves are left in place.
func (b *Builder) forgetStale(ctx context.Context, entries []CopyEntry) error {
	if b.manifest == nil {
		return nil
	}
	current := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		current[e.Output] = struct{}{}
	}

	recorded, err := b.manifest.OutputPaths(ctx)
	if err != nil {
		return err
	}
	for _, p := range recorded {
		if _, ok := current[p]; ok {
			continue
		}
		if err = b.manifest.Forget(ctx, p); err != nil {
			return err
		}
		b.logger.Debug("Forgot stale passthrough record", "output", p)
	}
	return nil
}
