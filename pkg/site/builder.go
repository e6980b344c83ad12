package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/manifest"
	"github.com/Yosolita1978/cascadiaaicollective/pkg/templating"
)

const (
	// DateKey is the front matter key that overrides a page's date.
	DateKey = "date"
	// PermalinkKey is the front matter key that overrides a page's output location.
	PermalinkKey = "permalink"
)

// ErrOutputConflict is returned when two pages would be written to the same file.
var ErrOutputConflict = errors.New("output conflict")

// BuildResult summarizes a finished build.
type BuildResult struct {
	Pages    int
	Copied   int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// WithManifest attaches a manifest store used for incremental passthrough copies.
func WithManifest(store *manifest.Store) Option {
	return func(b *Builder) {
		b.manifest = store
	}
}

// WithFilter registers a template function before the includes are parsed.
func WithFilter(name string, fn any) Option {
	return func(b *Builder) {
		b.filters[name] = fn
	}
}

// Builder renders pages and copies passthrough files from the input tree to
// the output tree.
type Builder struct {
	logger   *slog.Logger
	cfg      *Config
	tm       *templating.TemplateManager
	manifest *manifest.Store
	filters  template.FuncMap
}

// NewBuilder validates cfg and loads the includes directory.
func NewBuilder(logger *slog.Logger, cfg *Config, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		logger:  logger,
		cfg:     cfg,
		filters: template.FuncMap{},
	}
	for _, opt := range opts {
		opt(b)
	}

	tmplConfig := *cfg.Templates
	tmplConfig.IncludesDir = cfg.IncludesPath()
	tm, err := templating.NewTemplateManager(logger, &tmplConfig, b.filters)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	b.tm = tm
	return b, nil
}

// AddFilter registers a template function after construction and reloads the
// includes so they can use it.
func (b *Builder) AddFilter(name string, fn any) error {
	b.tm.AddFunc(name, fn)
	return b.tm.Refresh()
}

// Templates returns the builder's template manager.
func (b *Builder) Templates() *templating.TemplateManager {
	return b.tm
}

// Build renders every page and copies every passthrough file.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	b.logger.Info("Starting build", "input", b.cfg.Dir.Input, "output", b.cfg.Dir.Output)

	entries, err := ResolvePassthrough(b.logger, b.cfg)
	if err != nil {
		return nil, err
	}

	pages, err := b.DiscoverPages(entries)
	if err != nil {
		return nil, err
	}

	if err = b.renderPages(ctx, pages); err != nil {
		return nil, err
	}

	copied, skipped, written, err := b.CopyPassthrough(ctx, entries)
	if err != nil {
		return nil, err
	}
	if err = b.forgetStale(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to prune manifest: %w", err)
	}

	result := &BuildResult{
		Pages:    len(pages),
		Copied:   copied,
		Skipped:  skipped,
		Bytes:    written,
		Duration: time.Since(start),
	}

	if b.manifest != nil {
		run := manifest.Run{
			StartedAt:  start,
			FinishedAt: start.Add(result.Duration),
			Pages:      result.Pages,
			Copied:     result.Copied,
			Skipped:    result.Skipped,
			Bytes:      result.Bytes,
		}
		if _, err = b.manifest.RecordRun(ctx, run); err != nil {
			b.logger.Warn("Failed to record build run", "error", err)
		}
	}

	b.logger.Info("Build finished",
		"pages", result.Pages,
		"copied", result.Copied,
		"skipped", result.Skipped,
		"copied_bytes", humanize.Bytes(uint64(result.Bytes)),
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// DiscoverPages walks the input directory and loads every page. Directories
// and files starting with "_" or "." are ignored, as are the includes
// directory, the output directory, and passthrough sources.
func (b *Builder) DiscoverPages(passthrough []CopyEntry) ([]*templating.Page, error) {
	input := filepath.Clean(b.cfg.Dir.Input)
	includes := filepath.Clean(b.cfg.IncludesPath())
	output := filepath.Clean(b.cfg.Dir.Output)

	skip := make(map[string]struct{}, len(passthrough))
	for _, e := range passthrough {
		skip[filepath.Clean(e.Source)] = struct{}{}
	}

	var pages []*templating.Page
	byOutput := map[string]string{}

	err := filepath.WalkDir(input, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != input && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p == includes || p == output {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := skip[p]; ok {
			return nil
		}
		if !slices.Contains(b.cfg.Templates.Extensions, strings.ToLower(filepath.Ext(p))) {
			return nil
		}

		page, err := b.loadPage(input, p, d)
		if err != nil {
			return err
		}
		if prev, dup := byOutput[page.OutputPath]; dup {
			return fmt.Errorf("%w: %s and %s both write %s", ErrOutputConflict, prev, p, page.OutputPath)
		}
		byOutput[page.OutputPath] = p
		pages = append(pages, page)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].InputPath < pages[j].InputPath })
	return pages, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}

func (b *Builder) loadPage(input, p string, d fs.DirEntry) (*templating.Page, error) {
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", p, err)
	}
	data, body, err := templating.ParseFrontMatter(src)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", p, err)
	}

	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	date := info.ModTime()
	if raw, ok := data[DateKey]; ok {
		if t, valid := templating.ParseDate(raw); valid {
			date = t
		} else {
			b.logger.Warn("Ignoring unreadable front matter date", "page", p, "date", raw)
		}
	}

	rel, err := filepath.Rel(input, p)
	if err != nil {
		return nil, err
	}
	url, out := permalink(filepath.ToSlash(rel))
	if link, ok := data[PermalinkKey].(string); ok && link != "" {
		url, out = explicitPermalink(link)
	}

	return &templating.Page{
		PageInfo: templating.PageInfo{
			URL:        url,
			InputPath:  filepath.ToSlash(p),
			OutputPath: filepath.Join(b.cfg.Dir.Output, filepath.FromSlash(out)),
			Date:       date,
		},
		Body: body,
		Data: data,
	}, nil
}

// permalink derives the URL and output file (relative to the output dir) of a
// page from its slash-separated path relative to the input dir. index files
// keep their directory; any other page gets a directory of its own.
func permalink(rel string) (url, out string) {
	dir, file := path.Split(rel)
	stem := strings.TrimSuffix(file, path.Ext(file))
	if stem != "index" {
		dir = path.Join(dir, stem) + "/"
	}
	dir = strings.TrimPrefix(dir, "/")
	return "/" + dir, path.Join(dir, "index.html")
}

// explicitPermalink resolves a front matter permalink. A link ending in "/"
// names a directory; anything else names the output file itself.
func explicitPermalink(link string) (url, out string) {
	clean := strings.TrimPrefix(path.Clean("/"+link), "/")
	if strings.HasSuffix(link, "/") || clean == "" {
		if clean == "" {
			return "/", "index.html"
		}
		return "/" + clean + "/", path.Join(clean, "index.html")
	}
	return "/" + clean, clean
}

func (b *Builder) renderPages(ctx context.Context, pages []*templating.Page) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for _, page := range pages {
		page := page
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			var buf bytes.Buffer
			if err := b.tm.RenderPage(&buf, page); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(page.OutputPath), 0755); err != nil {
				return fmt.Errorf("failed to create output dir for %s: %w", page.OutputPath, err)
			}
			if err := atomic.WriteFile(page.OutputPath, &buf); err != nil {
				return fmt.Errorf("failed to write %s: %w", page.OutputPath, err)
			}
			if err := os.Chmod(page.OutputPath, 0644); err != nil {
				return fmt.Errorf("failed to set mode on %s: %w", page.OutputPath, err)
			}
			b.logger.Debug("Wrote page", "input", page.InputPath, "output", page.OutputPath, "url", page.URL)
			return nil
		})
	}
	return g.Wait()
}

// Clean removes the output directory and resets the manifest.
func (b *Builder) Clean(ctx context.Context) error {
	output := filepath.Clean(b.cfg.Dir.Output)
	if err := checkRemovable(output, filepath.Clean(b.cfg.Dir.Input)); err != nil {
		return err
	}

	if err := os.RemoveAll(output); err != nil {
		return fmt.Errorf("failed to remove output dir: %w", err)
	}
	if b.manifest != nil {
		if err := b.manifest.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset manifest: %w", err)
		}
	}
	b.logger.Info("Cleaned output directory", "dir", output)
	return nil
}

// checkRemovable refuses to delete the working directory, the filesystem root,
// or any directory that contains the input tree.
func checkRemovable(output, input string) error {
	if output == "." || output == string(filepath.Separator) || filepath.VolumeName(output)+string(filepath.Separator) == output {
		return fmt.Errorf("refusing to remove output dir %q", output)
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(absOut, absIn); err == nil && !escapes(rel) {
		return fmt.Errorf("refusing to remove output dir %q: it contains the input dir", output)
	}
	return nil
}
